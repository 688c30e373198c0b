package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"phonics-master/internal/app"
	"phonics-master/internal/domain"
	"phonics-master/internal/infra/memory"
)

func TestLocalMatchRoundFlow(t *testing.T) {
	ctx := context.Background()
	m, err := app.NewLocalMatch(app.DefaultLevels(), [2]string{"Player 1", "Player 2"}, nil)
	if err != nil {
		t.Fatalf("new local match: %v", err)
	}

	state, err := m.Submit(ctx, domain.Slot2, " Monkey ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if state.RoundWinner != domain.Slot2 || state.Competitor(domain.Slot2).Score != 1 {
		t.Fatalf("expected slot 2 to take the round, got %+v", state)
	}

	if state, _ = m.ApplyRoundDamage(ctx); state.Competitor(domain.Slot1).Health != 80 {
		t.Fatalf("expected slot 1 damaged, got %+v", state.Competitors)
	}
	if state, _ = m.AdvanceRound(ctx); state.QuestionIndex != 1 {
		t.Fatalf("expected second round, got %+v", state)
	}
	q, ok := m.CurrentQuestion()
	if !ok || q.TargetWord != "ate" {
		t.Fatalf("unexpected current question %+v", q)
	}
	if m.LocalSlot() != domain.SlotNone || !m.IsHost() || !m.Connection().Connected {
		t.Fatalf("same-device match plays both slots")
	}
}

func TestLocalMatchRejectsInvalidLevels(t *testing.T) {
	_, err := app.NewLocalMatch(nil, [2]string{"A", "B"}, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	m, err := app.NewLocalMatch(app.DefaultLevels(), [2]string{"A", "B"}, nil)
	if err != nil {
		t.Fatalf("new local match: %v", err)
	}
	ch, cancel := m.Subscribe()
	defer cancel()

	<-ch // initial snapshot

	if _, err := m.Submit(ctx, domain.Slot1, "monkey"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	update := <-ch
	if update.RoundWinner != domain.Slot1 {
		t.Fatalf("expected round winner in update, got %+v", update)
	}
}

func TestNetworkedMatchStaysInStep(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewLoopback(nil)

	host, guest := startNetworked(t, ctx, hub)

	if _, err := guest.Submit(ctx, domain.Slot1, "monkey"); !errors.Is(err, domain.ErrWrongSlot) {
		t.Fatalf("guest must not answer for slot 1, got %v", err)
	}
	if _, err := guest.Submit(ctx, domain.Slot2, "MONKEY"); err != nil {
		t.Fatalf("guest submit: %v", err)
	}
	waitFor(t, "host sees guest answer", func() bool {
		return host.State().RoundWinner == domain.Slot2
	})
	waitFor(t, "guest sees its answer echoed", func() bool {
		return guest.State().RoundWinner == domain.Slot2
	})

	if _, err := guest.AdvanceRound(ctx); !errors.Is(err, domain.ErrHostAuthority) {
		t.Fatalf("guest must not drive rounds, got %v", err)
	}
	if _, err := host.ApplyRoundDamage(ctx); err != nil {
		t.Fatalf("damage: %v", err)
	}
	if _, err := host.AdvanceRound(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	waitFor(t, "guest follows the host", func() bool {
		return guest.State() == host.State()
	})
	if st := guest.State(); st.QuestionIndex != 1 || st.Competitor(domain.Slot1).Health != 80 {
		t.Fatalf("unexpected guest state %+v", st)
	}

	if _, err := host.Forfeit(ctx, domain.Slot1); err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	waitFor(t, "guest sees the forfeit", func() bool {
		return guest.State().Winner == domain.WinnerSlot2
	})
}

func TestGuestRejoinReplaysMatch(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewLoopback(nil)
	host, guest := startNetworked(t, ctx, hub)

	if _, err := host.Submit(ctx, domain.Slot1, "monkey"); err != nil {
		t.Fatalf("host submit: %v", err)
	}
	_, _ = host.ApplyRoundDamage(ctx)
	_, _ = host.AdvanceRound(ctx)
	if err := guest.Leave(ctx); err != nil {
		t.Fatalf("guest leave: %v", err)
	}
	waitFor(t, "host notices guest left", func() bool {
		return !host.Connection().Connected
	})

	rejoined, err := app.JoinMatch(ctx, hub, host.SessionID(), "Bob", nil)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	defer rejoined.Leave(ctx)
	waitFor(t, "rejoined guest catches up", func() bool {
		return rejoined.Started() && rejoined.State() == host.State()
	})
	if rejoined.State().QuestionIndex != 1 {
		t.Fatalf("expected replayed progress, got %+v", rejoined.State())
	}
}

func TestGuestPlaysOnWhenHostLeaves(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewLoopback(nil)
	host, guest := startNetworked(t, ctx, hub)

	if err := host.Leave(ctx); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	if st := guest.Connection(); st.Connected || st.Err == "" {
		t.Fatalf("guest must see the host leave, got %+v", st)
	}

	state, err := guest.Submit(ctx, domain.Slot2, "monkey")
	if err != nil {
		t.Fatalf("offline submit: %v", err)
	}
	if state.RoundWinner != domain.Slot2 {
		t.Fatalf("offline guest must apply its own answer, got %+v", state)
	}
	if state, _ = guest.ApplyRoundDamage(ctx); state.Competitor(domain.Slot1).Health != 80 {
		t.Fatalf("offline guest drives its own rounds, got %+v", state.Competitors)
	}
}

func TestOfflineGuestForcesStalledRound(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewLoopback(nil)
	host, guest := startNetworked(t, ctx, hub)

	if err := host.Leave(ctx); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	if _, err := guest.Submit(ctx, domain.Slot2, "wrong"); err != nil {
		t.Fatalf("offline submit: %v", err)
	}
	if _, err := guest.Submit(ctx, domain.Slot1, "monkey"); !errors.Is(err, domain.ErrWrongSlot) {
		t.Fatalf("guest still cannot answer for slot 1, got %v", err)
	}

	state, err := guest.ForceResolve(ctx)
	if err != nil {
		t.Fatalf("force resolve: %v", err)
	}
	if state.Phase != domain.PhaseRoundResolved || state.RoundWinner != domain.SlotNone {
		t.Fatalf("expected a round with no winner, got %+v", state)
	}
	if state.Competitor(domain.Slot1).LastOutcome != domain.OutcomeIncorrect {
		t.Fatalf("the silent competitor must count as wrong, got %+v", state.Competitors)
	}

	state, _ = guest.ApplyRoundDamage(ctx)
	if state.Competitor(domain.Slot1).Health != domain.MaxHealth || state.Competitor(domain.Slot2).Health != domain.MaxHealth {
		t.Fatalf("no winner means no damage, got %+v", state.Competitors)
	}
	if state, _ = guest.AdvanceRound(ctx); state.QuestionIndex != 1 || state.Phase != domain.PhaseAwaitingAnswers {
		t.Fatalf("expected the match to move on, got %+v", state)
	}
}

func TestOnlyTheHostForcesRounds(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewLoopback(nil)
	host, guest := startNetworked(t, ctx, hub)

	if _, err := guest.ForceResolve(ctx); !errors.Is(err, domain.ErrHostAuthority) {
		t.Fatalf("connected guest must defer to the host, got %v", err)
	}
	if _, err := host.Submit(ctx, domain.Slot1, "nope"); err != nil {
		t.Fatalf("host submit: %v", err)
	}
	state, err := host.ForceResolve(ctx)
	if err != nil {
		t.Fatalf("force resolve: %v", err)
	}
	if state.Phase != domain.PhaseRoundResolved || state.Competitor(domain.Slot2).LastOutcome != domain.OutcomeIncorrect {
		t.Fatalf("expected the guest to time out, got %+v", state)
	}
	waitFor(t, "guest sees the forced round", func() bool { return guest.State() == host.State() })

	if again, _ := host.ForceResolve(ctx); again != state {
		t.Fatalf("forcing a resolved round must be a no-op")
	}
}

func TestHostRejectsDuplicateSession(t *testing.T) {
	ctx := context.Background()
	hub := memory.NewLoopback(nil)
	first, err := app.HostMatch(ctx, hub, "ABC234", "Alice", app.DefaultLevels(), nil)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	defer first.Leave(ctx)

	if _, err := app.HostMatch(ctx, hub, "ABC234", "Eve", app.DefaultLevels(), nil); !errors.Is(err, domain.ErrAddressInUse) {
		t.Fatalf("expected address in use, got %v", err)
	}
	if _, err := first.Submit(ctx, domain.Slot1, "monkey"); !errors.Is(err, domain.ErrMatchNotStarted) {
		t.Fatalf("expected not started before a guest joins, got %v", err)
	}
	if _, err := app.JoinMatch(ctx, hub, "XYZ789", "Bob", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func startNetworked(t *testing.T, ctx context.Context, hub *memory.Loopback) (*app.Match, *app.Match) {
	t.Helper()
	host, err := app.HostMatch(ctx, hub, "ABC234", "Alice", app.DefaultLevels(), nil)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	t.Cleanup(func() { _ = host.Leave(ctx) })

	guest, err := app.JoinMatch(ctx, hub, "ABC234", "Bob", nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	t.Cleanup(func() { _ = guest.Leave(ctx) })

	waitFor(t, "both sides start", func() bool {
		return host.Started() && guest.Started()
	})
	if got := guest.State().Competitor(domain.Slot1).DisplayName; got != "Alice" {
		t.Fatalf("guest must learn the host name, got %q", got)
	}
	if got := host.State().Competitor(domain.Slot2).DisplayName; got != "Bob" {
		t.Fatalf("host must learn the guest name, got %q", got)
	}
	return host, guest
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
