// Package match holds the pure versus-match rules: answer evaluation, state
// transitions and the operation-replay wire messages exchanged by peers.
package match

import (
	"strings"

	"phonics-master/internal/domain"
)

// Evaluation is the result of checking one answer.
type Evaluation struct {
	IsCorrect        bool
	NormalizedAnswer string
}

// Evaluate trims and lowercases raw and compares it to the target word.
func Evaluate(q domain.Question, raw string) Evaluation {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	return Evaluation{
		IsCorrect:        normalized == q.TargetWord,
		NormalizedAnswer: normalized,
	}
}

// NoAnswer is submitted for a competitor who ran out of time. Target words
// are never empty, so it always evaluates as incorrect.
const NoAnswer = ""
