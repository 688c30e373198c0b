package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
	"phonics-master/internal/session"
)

// Match owns one versus match and keeps it in step with the remote peer.
//
// The host sequences the match: it applies its own answers and every guest
// answer in arrival order, broadcasts each applied message, and is the only
// side that applies damage and advances rounds. A connected guest forwards
// its answers and applies what the host sends back. A guest whose host is
// unreachable applies its own moves locally and keeps playing.
type Match struct {
	log    *zap.Logger
	handle session.Handle // nil for same-device matches
	self   string

	mu          sync.Mutex
	questions   []domain.Question
	names       [2]string
	state       domain.MatchState
	started     bool
	journal     []match.Message
	subscribers map[chan domain.MatchState]struct{}
}

// NewLocalMatch starts a same-device match where both slots play locally.
func NewLocalMatch(questions []domain.Question, names [2]string, log *zap.Logger) (*Match, error) {
	if err := domain.ValidateLevels(questions); err != nil {
		return nil, err
	}
	state, err := match.StartMatch(questions, names)
	if err != nil {
		return nil, err
	}
	m := newMatch(nil, "", log)
	m.questions = questions
	m.names = names
	m.state = state
	m.started = true
	return m, nil
}

// HostMatch opens a session and waits for a guest. The match starts when the
// guest's join message arrives.
func HostMatch(ctx context.Context, t session.Transport, sessionID, hostName string, questions []domain.Question, log *zap.Logger) (*Match, error) {
	if err := domain.ValidateLevels(questions); err != nil {
		return nil, err
	}
	handle, err := t.Host(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m := newMatch(handle, hostName, log)
	m.questions = questions
	handle.OnReceive(m.receive)
	m.log.Info("hosting match", zap.String("transport", string(t.Kind())))
	return m, nil
}

// JoinMatch joins a hosted session and announces the guest. The match starts
// when the host's startMatch message arrives.
func JoinMatch(ctx context.Context, t session.Transport, sessionID, guestName string, log *zap.Logger) (*Match, error) {
	handle, err := t.Join(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m := newMatch(handle, guestName, log)
	handle.OnReceive(m.receive)
	if err := handle.Send(ctx, match.Join{Name: guestName}); err != nil {
		_ = handle.Leave(ctx)
		return nil, session.JoinError(sessionID, err)
	}
	m.log.Info("joined match", zap.String("transport", string(t.Kind())))
	return m, nil
}

func newMatch(handle session.Handle, self string, log *zap.Logger) *Match {
	if log == nil {
		log = zap.NewNop()
	}
	if handle != nil {
		log = log.With(zap.String("session", handle.ID()), zap.String("role", string(handle.Role())))
	}
	return &Match{
		log:         log,
		handle:      handle,
		self:        self,
		subscribers: make(map[chan domain.MatchState]struct{}),
	}
}

// SessionID is empty for same-device matches.
func (m *Match) SessionID() string {
	if m.handle == nil {
		return ""
	}
	return m.handle.ID()
}

// LocalSlot is the slot this side plays, or SlotNone when it plays both.
func (m *Match) LocalSlot() domain.Slot {
	if m.handle == nil {
		return domain.SlotNone
	}
	return m.handle.Role().Slot()
}

// IsHost reports whether this side sequences the match. Same-device matches
// are their own host.
func (m *Match) IsHost() bool {
	return m.handle == nil || m.handle.Role() == session.RoleHost
}

// Started reports whether both competitors are known.
func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// State returns the current snapshot.
func (m *Match) State() domain.MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Questions returns the level list the match is played with.
func (m *Match) Questions() []domain.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.questions
}

// CurrentQuestion returns the question of the current round.
func (m *Match) CurrentQuestion() (domain.Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.state.QuestionIndex >= len(m.questions) {
		return domain.Question{}, false
	}
	return m.questions[m.state.QuestionIndex], true
}

// Connection reports the peer link. Same-device matches are always connected.
func (m *Match) Connection() session.Status {
	if m.handle == nil {
		return session.Status{Connected: true}
	}
	return m.handle.Status()
}

// Submit records an answer for slot in the current round.
func (m *Match) Submit(ctx context.Context, slot domain.Slot, answer string) (domain.MatchState, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return domain.MatchState{}, domain.ErrMatchNotStarted
	}
	if m.handle != nil && slot != m.handle.Role().Slot() {
		state := m.state
		m.mu.Unlock()
		return state, domain.ErrWrongSlot
	}
	msg := match.AnswerSubmitted{Round: m.state.QuestionIndex, Slot: slot, Answer: answer}
	m.mu.Unlock()

	if m.guestOnline() {
		err := m.handle.Send(ctx, msg)
		if err == nil {
			return m.State(), nil
		}
		m.log.Warn("answer not delivered to host, playing on locally", zap.Error(err))
	}
	return m.commit(ctx, msg), nil
}

// ApplyRoundDamage takes health from the loser of the resolved round.
func (m *Match) ApplyRoundDamage(ctx context.Context) (domain.MatchState, error) {
	return m.drive(ctx, func(state domain.MatchState) match.Message {
		return match.DamageApplied{Round: state.QuestionIndex}
	})
}

// AdvanceRound moves to the next round or decides the match.
func (m *Match) AdvanceRound(ctx context.Context) (domain.MatchState, error) {
	return m.drive(ctx, func(state domain.MatchState) match.Message {
		return match.RoundAdvanced{Round: state.QuestionIndex, TotalQuestions: len(m.questions)}
	})
}

// Forfeit concedes the match on behalf of slot.
func (m *Match) Forfeit(ctx context.Context, slot domain.Slot) (domain.MatchState, error) {
	if !slot.Valid() {
		return m.State(), domain.ErrWrongSlot
	}
	if !m.Started() {
		return domain.MatchState{}, domain.ErrMatchNotStarted
	}
	if m.handle != nil && slot != m.handle.Role().Slot() {
		return m.State(), domain.ErrWrongSlot
	}
	msg := match.MatchOver{Winner: domain.WinnerFor(slot.Opponent())}
	if m.guestOnline() {
		if err := m.handle.Send(ctx, msg); err != nil {
			m.log.Warn("forfeit not delivered to host", zap.Error(err))
		}
	}
	return m.commit(ctx, msg), nil
}

// ForceResolve closes the current round as if every competitor still
// thinking had answered wrong. Only the side sequencing the match may force
// a round: the host, a same-device match, or a guest whose host is gone.
func (m *Match) ForceResolve(ctx context.Context) (domain.MatchState, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return domain.MatchState{}, domain.ErrMatchNotStarted
	}
	state := m.state
	m.mu.Unlock()

	if m.guestOnline() {
		return state, domain.ErrHostAuthority
	}
	for _, slot := range match.Unanswered(state) {
		state = m.commit(ctx, match.AnswerSubmitted{Round: state.QuestionIndex, Slot: slot, Answer: match.NoAnswer})
	}
	return state, nil
}

// Subscribe returns a channel of state snapshots. Slow readers only ever see
// the latest one. The caller must invoke cancel to avoid leaks.
func (m *Match) Subscribe() (<-chan domain.MatchState, func()) {
	ch := make(chan domain.MatchState, 8)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	if m.started {
		ch <- m.state
	}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// Leave tears down the session, if any, and closes every subscription.
func (m *Match) Leave(ctx context.Context) error {
	var err error
	if m.handle != nil {
		err = m.handle.Leave(ctx)
	}
	m.mu.Lock()
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
	m.mu.Unlock()
	return err
}

func (m *Match) drive(ctx context.Context, build func(domain.MatchState) match.Message) (domain.MatchState, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return domain.MatchState{}, domain.ErrMatchNotStarted
	}
	msg := build(m.state)
	m.mu.Unlock()

	if m.guestOnline() {
		return m.State(), domain.ErrHostAuthority
	}
	return m.commit(ctx, msg), nil
}

func (m *Match) guestOnline() bool {
	return m.handle != nil && m.handle.Role() == session.RoleGuest && m.handle.Status().Connected
}

// commit applies msg locally and, on the host, relays what changed.
func (m *Match) commit(ctx context.Context, msg match.Message) domain.MatchState {
	m.mu.Lock()
	out := m.applyLocked(msg)
	state := m.state
	m.mu.Unlock()

	m.publish(ctx, out)
	return state
}

// applyLocked replays msg and returns the messages the peer needs to see.
// The caller must hold m.mu.
func (m *Match) applyLocked(msg match.Message) []match.Message {
	next, err := match.Apply(m.state, msg, m.questions)
	if err != nil {
		m.log.Warn("message rejected", zap.String("operation", string(msg.Operation())), zap.Error(err))
		return nil
	}
	if next == m.state {
		return nil
	}
	wasOver := m.state.Over()
	m.state = next
	m.journal = append(m.journal, msg)
	out := []match.Message{msg}
	if _, final := msg.(match.MatchOver); !final && !wasOver && next.Over() {
		out = append(out, match.MatchOver{Winner: next.Winner})
	}
	if next.Over() && !wasOver {
		m.log.Info("match over", zap.Stringer("winner", next.Winner))
	}
	m.broadcastLocked()
	return out
}

func (m *Match) publish(ctx context.Context, msgs []match.Message) {
	if m.handle == nil || m.handle.Role() != session.RoleHost {
		return
	}
	for _, msg := range msgs {
		if err := m.handle.Send(ctx, msg); err != nil {
			m.log.Debug("peer update dropped", zap.String("operation", string(msg.Operation())), zap.Error(err))
		}
	}
}

func (m *Match) broadcastLocked() {
	for ch := range m.subscribers {
		select {
		case ch <- m.state:
		default:
			// drop the stale snapshot so slow readers never block a transition
			select {
			case <-ch:
			default:
			}
			ch <- m.state
		}
	}
}

func (m *Match) receive(msg match.Message) {
	ctx := context.Background()
	host := m.IsHost()

	switch v := msg.(type) {
	case match.Join:
		if host {
			m.guestJoined(ctx, v.Name)
		}
	case match.MatchStarted:
		if !host {
			m.startFromHost(v)
		}
	case match.AnswerSubmitted:
		if host && v.Slot != domain.Slot2 {
			m.log.Warn("guest answered for the host slot", zap.Int("slot", int(v.Slot)))
			return
		}
		m.applyRemote(ctx, msg)
	case match.DamageApplied, match.RoundAdvanced:
		if host {
			m.log.Warn("guest tried to drive the round", zap.String("operation", string(msg.Operation())))
			return
		}
		m.applyRemote(ctx, msg)
	case match.MatchOver:
		if host && v.Winner != domain.WinnerSlot1 {
			m.log.Warn("guest claimed a result other than conceding", zap.Stringer("winner", v.Winner))
			return
		}
		m.applyRemote(ctx, msg)
	}
}

func (m *Match) applyRemote(ctx context.Context, msg match.Message) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		m.log.Warn("message before match start", zap.String("operation", string(msg.Operation())))
		return
	}
	out := m.applyLocked(msg)
	m.mu.Unlock()
	m.publish(ctx, out)
}

// guestJoined starts the match on first join and brings any joining guest up
// to date by replaying the whole match.
func (m *Match) guestJoined(ctx context.Context, guestName string) {
	m.mu.Lock()
	if !m.started {
		m.names = [2]string{m.self, guestName}
		state, err := match.StartMatch(m.questions, m.names)
		if err != nil {
			m.mu.Unlock()
			m.log.Error("cannot start match", zap.Error(err))
			return
		}
		m.state = state
		m.started = true
		m.broadcastLocked()
		m.log.Info("guest joined, match started", zap.String("guest", guestName))
	} else {
		m.log.Info("guest rejoined, replaying match", zap.String("guest", guestName), zap.Int("journal", len(m.journal)))
	}
	replay := make([]match.Message, 0, len(m.journal)+1)
	replay = append(replay, match.MatchStarted{Names: m.names, Questions: m.questions})
	replay = append(replay, m.journal...)
	m.mu.Unlock()

	m.publish(ctx, replay)
}

func (m *Match) startFromHost(start match.MatchStarted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := match.StartMatch(start.Questions, start.Names)
	if err != nil {
		m.log.Error("host sent an unusable match", zap.Error(err))
		return
	}
	m.questions = start.Questions
	m.names = start.Names
	m.state = state
	m.started = true
	m.journal = nil
	m.broadcastLocked()
	m.log.Info("match started by host", zap.String("host", start.Names[0]))
}
