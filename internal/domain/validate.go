package domain

import (
	"strings"
	"unicode/utf8"
)

// Validate checks a single question.
func (q Question) Validate() error {
	if q.ID <= 0 {
		return &ValidationError{QuestionID: q.ID, Field: "id", Reason: "must be positive"}
	}
	if n := strings.Count(q.Sentence, BlankMarker); n != 1 {
		return &ValidationError{QuestionID: q.ID, Field: "sentence", Reason: "must contain exactly one " + BlankMarker}
	}
	word := q.TargetWord
	if word == "" {
		return &ValidationError{QuestionID: q.ID, Field: "targetWord", Reason: "is empty"}
	}
	if word != strings.ToLower(strings.TrimSpace(word)) {
		return &ValidationError{QuestionID: q.ID, Field: "targetWord", Reason: "must be trimmed lowercase"}
	}
	for _, d := range q.Distractors {
		if utf8.RuneCountInString(d) != 1 {
			return &ValidationError{QuestionID: q.ID, Field: "distractors", Reason: "entries must be single characters"}
		}
	}
	length := utf8.RuneCountInString(word)
	for _, rule := range q.PhonicsRules {
		for _, i := range rule.Indices {
			if i < 0 || i >= length {
				return &ValidationError{QuestionID: q.ID, Field: "phonicsRules", Reason: "index out of range for " + rule.Name}
			}
		}
	}
	return nil
}

// ValidateLevels checks every question and that ids are unique.
func ValidateLevels(questions []Question) error {
	if len(questions) == 0 {
		return &ValidationError{Field: "levels", Reason: ErrNoQuestions.Error()}
	}
	seen := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return &ValidationError{QuestionID: q.ID, Field: "id", Reason: "duplicate"}
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
