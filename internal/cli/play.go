package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phonics-master/internal/app"
	"phonics-master/internal/config"
	"phonics-master/internal/domain"
	"phonics-master/internal/session"
)

// NewPlayCmd runs a versus match in the terminal.
func NewPlayCmd(opts *rootOptions) *cobra.Command {
	var backend, joinCode, name string
	var roundTime time.Duration
	var single bool
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a versus match from the terminal",
		Long: `Play a versus match. With the local backend both players share the
terminal and prefix answers with their slot ("1 monkey", "2 monkey").
Other backends host a new session, or join one with --join CODE.
--single plays the timed quiz alone instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			if backend != "" {
				cfg.Transport.Backend = backend
			}

			res, err := openResources(ctx, cfg)
			if err != nil {
				return err
			}
			defer res.Close()
			store, err := newLevelStore(cfg, res)
			if err != nil {
				return err
			}
			levels, err := app.NewLevelService(store, log).Levels(ctx)
			if err != nil {
				return err
			}

			if single {
				g, err := app.NewSoloGame(levels, nil)
				if err != nil {
					return err
				}
				return playSolo(ctx, g, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			m, err := openMatch(ctx, cfg, res, log, levels, joinCode, name, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer m.Leave(context.Background())
			return play(ctx, m, cmd.InOrStdin(), cmd.OutOrStdout(), roundTime)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "local, poll, peer or realtime (env: PHONICS_BACKEND)")
	cmd.Flags().StringVar(&joinCode, "join", "", "session code to join instead of hosting")
	cmd.Flags().StringVar(&name, "name", "Player", "display name (env: PHONICS_NAME)")
	cmd.Flags().BoolVar(&single, "single", false, "play the timed single-player quiz")
	cmd.Flags().DurationVar(&roundTime, "round-time", 30*time.Second, "time limit per round, 0 for none")
	return cmd
}

func openMatch(ctx context.Context, cfg config.Config, res *resources, log *zap.Logger, levels []domain.Question, joinCode, name string, out io.Writer) (*app.Match, error) {
	kind := session.Kind(cfg.Transport.Backend)
	if kind == "" || kind == session.KindLocalLoopback {
		return app.NewLocalMatch(levels, [2]string{"Player 1", "Player 2"}, log)
	}
	t, err := newTransport(cfg, res, log)
	if err != nil {
		return nil, err
	}
	if joinCode != "" {
		code := session.NormalizeCode(joinCode)
		if !session.ValidCode(code) {
			return nil, fmt.Errorf("invalid session code %q", joinCode)
		}
		return app.JoinMatch(ctx, t, code, name, log)
	}
	code := session.NewCode()
	m, err := app.HostMatch(ctx, t, code, name, levels, log)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Session code: %s (waiting for an opponent)\n", code)
	return m, nil
}

// play reads answers from in until EOF, /quit or the match ends.
// Same-device matches render inline; networked ones render from a
// subscription since the peer changes state too. A positive roundTime
// closes rounds nobody finished in time.
func play(ctx context.Context, m *app.Match, in io.Reader, out io.Writer, roundTime time.Duration) error {
	p := newPresenter(m, out, roundTime)
	defer p.stop()
	local := m.LocalSlot() == domain.SlotNone

	stop := func() {}
	if local {
		p.show(ctx, m.State())
	} else {
		updates, cancel := m.Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for state := range updates {
				p.show(ctx, state)
			}
		}()
		stop = func() {
			cancel()
			<-done
		}
	}
	defer stop()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/quit":
			return nil
		case "/forfeit":
			state, err := m.Forfeit(ctx, forfeitSlot(m))
			if err != nil {
				p.printf("cannot forfeit: %v\n", err)
			} else if local {
				p.show(ctx, state)
			}
			continue
		}

		slot, answer, err := parseAnswer(line, m.LocalSlot())
		if err != nil {
			p.printf("%v\n", err)
			continue
		}
		state, err := m.Submit(ctx, slot, answer)
		if err != nil {
			p.printf("answer not accepted: %v\n", err)
			continue
		}
		if local {
			p.show(ctx, state)
		}
		if m.State().Over() {
			break
		}
	}
	return scanner.Err()
}

// playSolo runs the single-player quiz until every level is solved, the
// clock runs out or input ends.
func playSolo(ctx context.Context, g *app.SoloGame, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	prompt := func() {
		st := g.State()
		if q, ok := g.Current(); ok {
			fmt.Fprintf(out, "Level %d/%d (%ds left, score %d): %s  (letters: %s)\n",
				st.LevelIndex+1, g.Levels(), int(st.TimeLeft.Seconds()), st.Score, q.Sentence, strings.Join(q.Distractors, " "))
		}
	}
	prompt()

	clock := time.NewTimer(g.State().TimeLeft)
	defer clock.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-clock.C:
			st := g.State()
			fmt.Fprintf(out, "Time's up! Final score: %d\n", st.Score)
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			st, correct := g.Answer(line)
			switch {
			case st.Completed:
				fmt.Fprintf(out, "All levels done! Final score: %d\n", st.Score)
				return nil
			case st.Over:
				fmt.Fprintf(out, "Time's up! Final score: %d\n", st.Score)
				return nil
			case correct:
				fmt.Fprintf(out, "Correct! +%d\n", app.LevelScore)
				prompt()
			default:
				fmt.Fprintln(out, "Try again.")
			}
		}
	}
}

// parseAnswer reads "answer" for networked play or "slot answer" when both
// slots share the terminal.
func parseAnswer(line string, local domain.Slot) (domain.Slot, string, error) {
	if local != domain.SlotNone {
		return local, line, nil
	}
	head, answer, ok := strings.Cut(line, " ")
	if !ok {
		return domain.SlotNone, "", fmt.Errorf(`type "1 <answer>" or "2 <answer>"`)
	}
	switch head {
	case "1":
		return domain.Slot1, answer, nil
	case "2":
		return domain.Slot2, answer, nil
	}
	return domain.SlotNone, "", fmt.Errorf("unknown slot %q", head)
}

func forfeitSlot(m *app.Match) domain.Slot {
	if s := m.LocalSlot(); s != domain.SlotNone {
		return s
	}
	return domain.Slot1
}

// presenter renders snapshots. Whoever sequences the match (the host, or a
// guest that lost its host) drives resolved rounds on and closes rounds
// that run out of time.
type presenter struct {
	m         *app.Match
	out       io.Writer
	roundTime time.Duration

	mu       sync.Mutex
	round    int
	resolved int
	over     bool
	timer    *time.Timer
	stopped  bool
	pending  sync.WaitGroup
}

func newPresenter(m *app.Match, out io.Writer, roundTime time.Duration) *presenter {
	return &presenter{m: m, out: out, roundTime: roundTime, round: -1, resolved: -1}
}

func (p *presenter) sequencing() bool {
	return p.m.IsHost() || !p.m.Connection().Connected
}

func (p *presenter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *presenter) show(ctx context.Context, state domain.MatchState) {
	if p.announce(state) && p.sequencing() {
		p.advance(ctx)
		state = p.m.State()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.over:
	case state.Over():
		p.over = true
		fmt.Fprintln(p.out, scoreLine(state))
		if state.Winner == domain.WinnerDraw {
			fmt.Fprintln(p.out, "It's a draw!")
		} else {
			fmt.Fprintf(p.out, "%s wins!\n", state.Competitor(state.Winner.Slot()).DisplayName)
		}
	case state.Phase == domain.PhaseAwaitingAnswers && state.QuestionIndex > p.round:
		p.round = state.QuestionIndex
		p.armLocked(ctx, p.round)
		fmt.Fprintln(p.out, scoreLine(state))
		if q, ok := p.m.CurrentQuestion(); ok {
			fmt.Fprintf(p.out, "Round %d/%d: %s  (letters: %s)\n",
				state.QuestionIndex+1, len(p.m.Questions()), q.Sentence, strings.Join(q.Distractors, " "))
		}
	}
}

// announce prints the outcome of a newly resolved round. It reports whether
// the round was new.
func (p *presenter) announce(state domain.MatchState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state.Phase != domain.PhaseRoundResolved || state.QuestionIndex <= p.resolved {
		return false
	}
	p.resolved = state.QuestionIndex
	if state.RoundWinner.Valid() {
		fmt.Fprintf(p.out, "%s got it!\n", state.Competitor(state.RoundWinner).DisplayName)
	} else {
		fmt.Fprintln(p.out, "Nobody got it.")
	}
	return true
}

// advance applies damage and moves on; both are no-ops if already done.
func (p *presenter) advance(ctx context.Context) {
	if _, err := p.m.ApplyRoundDamage(ctx); err != nil {
		p.printf("damage: %v\n", err)
		return
	}
	if _, err := p.m.AdvanceRound(ctx); err != nil {
		p.printf("advance: %v\n", err)
	}
}

// armLocked starts the clock for round. Callers hold p.mu.
func (p *presenter) armLocked(ctx context.Context, round int) {
	if p.roundTime <= 0 || p.stopped {
		return
	}
	if p.timer != nil && p.timer.Stop() {
		p.pending.Done()
	}
	p.pending.Add(1)
	p.timer = time.AfterFunc(p.roundTime, func() {
		defer p.pending.Done()
		p.expire(ctx, round)
	})
}

// expire closes round if it is still open. Only the sequencing side forces
// the round; the other side keeps waiting for it.
func (p *presenter) expire(ctx context.Context, round int) {
	p.mu.Lock()
	if p.stopped || p.over || p.round != round || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if !p.sequencing() {
		p.armLocked(ctx, round)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.printf("Time's up!\n")
	state, err := p.m.ForceResolve(ctx)
	if err != nil {
		p.printf("cannot close the round: %v\n", err)
		return
	}
	p.show(ctx, state)
	if st := p.m.State(); !st.Over() && st.QuestionIndex == round && st.Phase == domain.PhaseRoundResolved {
		p.advance(ctx)
		p.show(ctx, p.m.State())
	}
}

// stop cancels the round clock and waits for a running expiry to finish.
func (p *presenter) stop() {
	p.mu.Lock()
	p.stopped = true
	if p.timer != nil && p.timer.Stop() {
		p.pending.Done()
	}
	p.mu.Unlock()
	p.pending.Wait()
}

func scoreLine(state domain.MatchState) string {
	parts := make([]string, 0, len(state.Competitors))
	for _, c := range state.Competitors {
		parts = append(parts, fmt.Sprintf("%s: health %d, score %d", c.DisplayName, c.Health, c.Score))
	}
	return strings.Join(parts, " | ")
}
