package match

import "phonics-master/internal/domain"

// StartMatch returns the opening state for two competitors.
func StartMatch(questions []domain.Question, names [2]string) (domain.MatchState, error) {
	if len(questions) == 0 {
		return domain.MatchState{}, &domain.ValidationError{Field: "levels", Reason: domain.ErrNoQuestions.Error()}
	}
	state := domain.MatchState{Phase: domain.PhaseAwaitingAnswers}
	for i, name := range names {
		state.Competitors[i] = domain.Competitor{
			Slot:        domain.Slot(i + 1),
			DisplayName: name,
			Health:      domain.MaxHealth,
		}
	}
	return state, nil
}

// SubmitAnswer records slot's answer for the current round. The first correct
// answer wins the round. Repeat submissions and submissions outside
// awaiting-answers are no-ops.
func SubmitAnswer(state domain.MatchState, slot domain.Slot, raw string, q domain.Question) domain.MatchState {
	if state.Phase != domain.PhaseAwaitingAnswers || !slot.Valid() {
		return state
	}
	c := state.Competitor(slot)
	if c.LastOutcome != domain.OutcomeUnknown {
		return state
	}

	eval := Evaluate(q, raw)
	c.PendingInput = eval.NormalizedAnswer
	c.LastOutcome = domain.OutcomeIncorrect
	if eval.IsCorrect {
		c.LastOutcome = domain.OutcomeCorrect
	}

	if eval.IsCorrect && state.RoundWinner == domain.SlotNone {
		c.Score++
		state.RoundWinner = slot
		state.Phase = domain.PhaseRoundResolved
	}
	state = state.WithCompetitor(c)

	// Two wrong answers resolve the round without a winner.
	if state.Phase == domain.PhaseAwaitingAnswers &&
		state.Competitors[0].LastOutcome == domain.OutcomeIncorrect &&
		state.Competitors[1].LastOutcome == domain.OutcomeIncorrect {
		state.Phase = domain.PhaseRoundResolved
	}
	return state
}

// ApplyRoundDamage takes RoundDamage health from the round loser, once per
// round. Health reaching zero ends the match for the opponent.
func ApplyRoundDamage(state domain.MatchState) domain.MatchState {
	if state.Phase != domain.PhaseRoundResolved || state.DamageApplied {
		return state
	}
	state.DamageApplied = true
	if state.RoundWinner == domain.SlotNone {
		return state
	}

	loser := state.Competitor(state.RoundWinner.Opponent())
	loser.Health = clampHealth(loser.Health - domain.RoundDamage)
	state = state.WithCompetitor(loser)

	if loser.Health == 0 {
		state.Winner = domain.WinnerFor(state.RoundWinner)
		state.RoundWinner = domain.SlotNone
		state.Phase = domain.PhaseMatchOver
	}
	return state
}

// AdvanceRound moves to the next question, or decides the match by health
// after the last one.
func AdvanceRound(state domain.MatchState, totalQuestions int) domain.MatchState {
	if state.Phase != domain.PhaseRoundResolved {
		return state
	}

	if state.QuestionIndex >= totalQuestions-1 {
		h1 := state.Competitors[0].Health
		h2 := state.Competitors[1].Health
		switch {
		case h1 > h2:
			state.Winner = domain.WinnerSlot1
		case h2 > h1:
			state.Winner = domain.WinnerSlot2
		default:
			state.Winner = domain.WinnerDraw
		}
		state.RoundWinner = domain.SlotNone
		state.Phase = domain.PhaseMatchOver
		return state
	}

	state.QuestionIndex++
	state.RoundWinner = domain.SlotNone
	state.DamageApplied = false
	for i := range state.Competitors {
		state.Competitors[i].PendingInput = ""
		state.Competitors[i].LastOutcome = domain.OutcomeUnknown
	}
	state.Phase = domain.PhaseAwaitingAnswers
	return state
}

// EndMatch declares a result from outside the round flow: a peer's matchOver
// notice or a forfeit. A draw is only accepted when health is level.
func EndMatch(state domain.MatchState, winner domain.Winner) domain.MatchState {
	if state.Over() || winner == domain.WinnerNone {
		return state
	}
	if winner == domain.WinnerDraw && state.Competitors[0].Health != state.Competitors[1].Health {
		return state
	}
	state.Winner = winner
	state.RoundWinner = domain.SlotNone
	state.Phase = domain.PhaseMatchOver
	return state
}

func clampHealth(h int) int {
	if h < 0 {
		return 0
	}
	if h > domain.MaxHealth {
		return domain.MaxHealth
	}
	return h
}

// Unanswered lists the slots with no outcome yet in an open round.
func Unanswered(state domain.MatchState) []domain.Slot {
	if state.Phase != domain.PhaseAwaitingAnswers {
		return nil
	}
	var slots []domain.Slot
	for _, c := range state.Competitors {
		if c.LastOutcome == domain.OutcomeUnknown {
			slots = append(slots, c.Slot)
		}
	}
	return slots
}
