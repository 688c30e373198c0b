package match

import (
	"fmt"

	"phonics-master/internal/domain"
)

// Apply replays msg against state. Messages addressed to another round are
// stale and leave state untouched, which makes redelivery harmless. Join and
// MatchStarted are session handshake messages and are not transitions.
func Apply(state domain.MatchState, msg Message, questions []domain.Question) (domain.MatchState, error) {
	switch m := msg.(type) {
	case AnswerSubmitted:
		if m.Round != state.QuestionIndex {
			return state, nil
		}
		if !m.Slot.Valid() {
			return state, fmt.Errorf("submitAnswer: invalid slot %d", m.Slot)
		}
		if state.QuestionIndex >= len(questions) {
			return state, fmt.Errorf("submitAnswer: round %d outside %d questions", m.Round, len(questions))
		}
		return SubmitAnswer(state, m.Slot, m.Answer, questions[state.QuestionIndex]), nil
	case DamageApplied:
		if m.Round != state.QuestionIndex {
			return state, nil
		}
		return ApplyRoundDamage(state), nil
	case RoundAdvanced:
		if m.Round != state.QuestionIndex {
			return state, nil
		}
		return AdvanceRound(state, m.TotalQuestions), nil
	case MatchOver:
		return EndMatch(state, m.Winner), nil
	case Join, MatchStarted:
		return state, fmt.Errorf("%s is not a transition", msg.Operation())
	}
	return state, fmt.Errorf("unsupported message %T", msg)
}
