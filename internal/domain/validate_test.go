package domain

import (
	"errors"
	"testing"
)

func TestQuestionValidate(t *testing.T) {
	valid := Question{ID: 1, Sentence: "The ____ is bright.", TargetWord: "sun", Distractors: []string{"m"},
		PhonicsRules: []PhonicsRule{{Name: "u", Indices: []int{1}}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid question, got %v", err)
	}

	cases := map[string]func(q *Question){
		"id":           func(q *Question) { q.ID = 0 },
		"sentence":     func(q *Question) { q.Sentence = "The ____ and ____." },
		"targetWord":   func(q *Question) { q.TargetWord = "Sun" },
		"distractors":  func(q *Question) { q.Distractors = []string{"mm"} },
		"phonicsRules": func(q *Question) { q.PhonicsRules[0].Indices = []int{3} },
	}
	for field, mutate := range cases {
		q := valid
		q.PhonicsRules = []PhonicsRule{{Name: "u", Indices: []int{1}}}
		mutate(&q)
		var verr *ValidationError
		if err := q.Validate(); !errors.As(err, &verr) || verr.Field != field {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
	}
}

func TestValidateLevelsRejectsDuplicates(t *testing.T) {
	q := Question{ID: 1, Sentence: "A ____.", TargetWord: "cat"}
	if err := ValidateLevels([]Question{q, q}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := ValidateLevels(nil); err == nil {
		t.Fatalf("expected empty level list error")
	}
}

func TestWinnerText(t *testing.T) {
	for _, w := range []Winner{WinnerNone, WinnerSlot1, WinnerSlot2, WinnerDraw} {
		text, _ := w.MarshalText()
		var back Winner
		if err := back.UnmarshalText(text); err != nil || back != w {
			t.Fatalf("winner %v did not survive text form %q", w, text)
		}
	}
	var w Winner
	if err := w.UnmarshalText([]byte("3")); err == nil {
		t.Fatalf("expected invalid winner error")
	}
}
