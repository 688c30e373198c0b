package match

import (
	"strings"
	"testing"

	"phonics-master/internal/domain"
)

func TestEvaluateNormalizesAnswer(t *testing.T) {
	q := domain.Question{ID: 1, Sentence: "A ____.", TargetWord: "cat"}

	cases := []struct {
		raw  string
		want bool
	}{
		{"cat", true},
		{"  CAT ", true},
		{"Cat\n", true},
		{"cats", false},
		{"ca", false},
		{"", false},
		{"c a t", false},
	}
	for _, tc := range cases {
		got := Evaluate(q, tc.raw)
		if got.IsCorrect != tc.want {
			t.Fatalf("Evaluate(%q) correct=%v, want %v", tc.raw, got.IsCorrect, tc.want)
		}
		if want := strings.ToLower(strings.TrimSpace(tc.raw)); got.NormalizedAnswer != want {
			t.Fatalf("Evaluate(%q) normalized=%q, want %q", tc.raw, got.NormalizedAnswer, want)
		}
	}
}

func TestStartMatchRequiresQuestions(t *testing.T) {
	if _, err := StartMatch(nil, [2]string{"A", "B"}); err == nil {
		t.Fatalf("expected validation error for empty level list")
	}

	state := mustStart(t)
	if state.Phase != domain.PhaseAwaitingAnswers || state.QuestionIndex != 0 {
		t.Fatalf("unexpected opening state %+v", state)
	}
	for i, c := range state.Competitors {
		if c.Slot != domain.Slot(i+1) || c.Score != 0 || c.Health != domain.MaxHealth {
			t.Fatalf("unexpected competitor %+v", c)
		}
	}
	if state.Winner != domain.WinnerNone || state.RoundWinner != domain.SlotNone {
		t.Fatalf("fresh match must not have winners: %+v", state)
	}
}

func TestRoundRobinExample(t *testing.T) {
	qs := questions()
	state := mustStart(t)

	state = SubmitAnswer(state, domain.Slot1, "cat", qs[0])
	if state.RoundWinner != domain.Slot1 || state.Competitor(domain.Slot1).Score != 1 || state.Phase != domain.PhaseRoundResolved {
		t.Fatalf("expected slot 1 to win round, got %+v", state)
	}

	state = ApplyRoundDamage(state)
	if h := state.Competitor(domain.Slot2).Health; h != 80 {
		t.Fatalf("expected health2=80, got %d", h)
	}

	state = AdvanceRound(state, len(qs))
	if state.QuestionIndex != 1 || state.Phase != domain.PhaseAwaitingAnswers {
		t.Fatalf("expected next round awaiting answers, got %+v", state)
	}
	for _, c := range state.Competitors {
		if c.LastOutcome != domain.OutcomeUnknown || c.PendingInput != "" {
			t.Fatalf("expected reset competitor, got %+v", c)
		}
	}
	if state.RoundWinner != domain.SlotNone || state.DamageApplied {
		t.Fatalf("round bookkeeping not cleared: %+v", state)
	}
}

func TestSubmitAnswerIsIdempotentPerRound(t *testing.T) {
	qs := questions()
	state := mustStart(t)

	state = SubmitAnswer(state, domain.Slot2, "dog", qs[0])
	again := SubmitAnswer(state, domain.Slot2, "cat", qs[0])
	if again != state {
		t.Fatalf("second submission changed state: %+v", again)
	}

	state = SubmitAnswer(state, domain.Slot1, "cat", qs[0])
	again = SubmitAnswer(state, domain.Slot1, "cat", qs[0])
	if again.Competitor(domain.Slot1).Score != 1 {
		t.Fatalf("score counted twice: %+v", again)
	}
}

func TestFirstCorrectAnswerWins(t *testing.T) {
	qs := questions()
	state := mustStart(t)

	state = SubmitAnswer(state, domain.Slot2, "CAT", qs[0])
	state = SubmitAnswer(state, domain.Slot1, "cat", qs[0])

	if state.RoundWinner != domain.Slot2 {
		t.Fatalf("expected slot 2 to win by call order, got %v", state.RoundWinner)
	}
	if state.Competitor(domain.Slot1).Score != 0 || state.Competitor(domain.Slot2).Score != 1 {
		t.Fatalf("only the round winner scores: %+v", state.Competitors)
	}
}

func TestTwoWrongAnswersResolveWithoutWinner(t *testing.T) {
	qs := questions()
	state := mustStart(t)

	state = SubmitAnswer(state, domain.Slot1, "cot", qs[0])
	if state.Phase != domain.PhaseAwaitingAnswers {
		t.Fatalf("one wrong answer must not resolve the round")
	}
	state = SubmitAnswer(state, domain.Slot2, "cut", qs[0])
	if state.Phase != domain.PhaseRoundResolved || state.RoundWinner != domain.SlotNone {
		t.Fatalf("expected resolved round with no winner, got %+v", state)
	}

	damaged := ApplyRoundDamage(state)
	for _, c := range damaged.Competitors {
		if c.Health != domain.MaxHealth {
			t.Fatalf("no winner means no damage, got %+v", c)
		}
	}
	if next := AdvanceRound(damaged, len(qs)); next.QuestionIndex != 1 {
		t.Fatalf("expected to advance after unresolved round, got %+v", next)
	}
}

func TestApplyRoundDamageOncePerRound(t *testing.T) {
	qs := questions()
	state := SubmitAnswer(mustStart(t), domain.Slot1, "cat", qs[0])

	state = ApplyRoundDamage(state)
	again := ApplyRoundDamage(state)
	if again != state {
		t.Fatalf("damage applied twice: %+v", again)
	}
}

func TestApplyRoundDamageRequiresResolvedRound(t *testing.T) {
	state := mustStart(t)
	if got := ApplyRoundDamage(state); got != state {
		t.Fatalf("damage outside round-resolved must be a no-op")
	}
	if got := AdvanceRound(state, 5); got != state {
		t.Fatalf("advance outside round-resolved must be a no-op")
	}
}

func TestHealthExhaustionEndsMatch(t *testing.T) {
	qs := questions()
	state := mustStart(t)
	loser := state.Competitor(domain.Slot2)
	loser.Health = domain.RoundDamage
	state = state.WithCompetitor(loser)

	state = SubmitAnswer(state, domain.Slot1, "cat", qs[0])
	state = ApplyRoundDamage(state)

	if state.Phase != domain.PhaseMatchOver || state.Winner != domain.WinnerSlot1 {
		t.Fatalf("expected slot 1 to win by exhaustion, got %+v", state)
	}
	if state.RoundWinner != domain.SlotNone {
		t.Fatalf("round winner must be cleared once the match is over")
	}
	if state.Competitor(domain.Slot2).Health != 0 {
		t.Fatalf("health must floor at zero")
	}
}

func TestHealthStaysInRange(t *testing.T) {
	qs := questions()
	state := mustStart(t)
	for round := 0; !state.Over(); round++ {
		state = SubmitAnswer(state, domain.Slot1, qs[state.QuestionIndex].TargetWord, qs[state.QuestionIndex])
		state = ApplyRoundDamage(state)
		state = AdvanceRound(state, len(qs))
		for _, c := range state.Competitors {
			if c.Health < 0 || c.Health > domain.MaxHealth {
				t.Fatalf("health out of range: %+v", c)
			}
		}
		if round > len(qs) {
			t.Fatalf("match did not end")
		}
	}
}

func TestExhaustionDraw(t *testing.T) {
	state := lastRoundState(t, 40, 40)
	state = AdvanceRound(state, len(questions()))
	if state.Winner != domain.WinnerDraw || state.Phase != domain.PhaseMatchOver {
		t.Fatalf("expected draw, got %+v", state)
	}
}

func TestExhaustionNonDraw(t *testing.T) {
	state := lastRoundState(t, 60, 40)
	state = AdvanceRound(state, len(questions()))
	if state.Winner != domain.WinnerSlot1 {
		t.Fatalf("expected slot 1 to win, got %v", state.Winner)
	}
}

func TestMatchOverIsTerminal(t *testing.T) {
	qs := questions()
	over := AdvanceRound(lastRoundState(t, 60, 40), len(qs))

	if got := SubmitAnswer(over, domain.Slot2, "cat", qs[0]); got != over {
		t.Fatalf("submit after match over changed state")
	}
	if got := ApplyRoundDamage(over); got != over {
		t.Fatalf("damage after match over changed state")
	}
	if got := AdvanceRound(over, len(qs)); got != over {
		t.Fatalf("advance after match over changed state")
	}
	if got := EndMatch(over, domain.WinnerSlot2); got != over {
		t.Fatalf("winner must be immutable once set")
	}
}

func TestEndMatchRejectsUnevenDraw(t *testing.T) {
	state := lastRoundState(t, 60, 40)
	if got := EndMatch(state, domain.WinnerDraw); got != state {
		t.Fatalf("draw with uneven health must be rejected")
	}
	if got := EndMatch(state, domain.WinnerSlot2); got.Winner != domain.WinnerSlot2 || !got.Over() {
		t.Fatalf("expected forfeit result, got %+v", got)
	}
}

func mustStart(t *testing.T) domain.MatchState {
	t.Helper()
	state, err := StartMatch(questions(), [2]string{"Alice", "Bob"})
	if err != nil {
		t.Fatalf("start match: %v", err)
	}
	return state
}

// lastRoundState returns a resolved round on the final question with the
// given health values and no round winner.
func lastRoundState(t *testing.T, h1, h2 int) domain.MatchState {
	t.Helper()
	state := mustStart(t)
	state.QuestionIndex = len(questions()) - 1
	state.Phase = domain.PhaseRoundResolved
	state.DamageApplied = true
	state.Competitors[0].Health = h1
	state.Competitors[1].Health = h2
	return state
}

func questions() []domain.Question {
	words := []string{"cat", "ate", "cake", "sun", "ship"}
	qs := make([]domain.Question, len(words))
	for i, w := range words {
		qs[i] = domain.Question{ID: i + 1, Sentence: "Look at the ____.", TargetWord: w, Distractors: []string{"x"}}
	}
	return qs
}

func TestUnansweredSlots(t *testing.T) {
	state := mustStart(t)
	if got := Unanswered(state); len(got) != 2 {
		t.Fatalf("both slots open at round start, got %v", got)
	}
	state = SubmitAnswer(state, domain.Slot1, "dog", questions()[0])
	if got := Unanswered(state); len(got) != 1 || got[0] != domain.Slot2 {
		t.Fatalf("expected only slot 2 open, got %v", got)
	}
	state = SubmitAnswer(state, domain.Slot2, NoAnswer, questions()[0])
	if state.Phase != domain.PhaseRoundResolved || state.RoundWinner != domain.SlotNone {
		t.Fatalf("no answer is never correct, got %+v", state)
	}
	if got := Unanswered(state); got != nil {
		t.Fatalf("resolved rounds have nothing open, got %v", got)
	}
}
