package domain

import (
	"fmt"
	"strconv"
)

// BlankMarker is the placeholder a sentence template uses for the target word.
const BlankMarker = "____"

const (
	// MaxHealth is every competitor's health at match start.
	MaxHealth = 100
	// RoundDamage is taken by the competitor who did not answer first.
	RoundDamage = 20
)

// PhonicsRule highlights letters of the target word. It is display-only.
type PhonicsRule struct {
	Name        string `json:"name"`
	Indices     []int  `json:"indices"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Question is one fill-in-the-blank level.
type Question struct {
	ID           int           `json:"id"`
	Sentence     string        `json:"sentence"`
	TargetWord   string        `json:"targetWord"`
	ImageHint    string        `json:"imageHint"`
	Distractors  []string      `json:"distractors"`
	PhonicsRules []PhonicsRule `json:"phonicsRules,omitempty"`
}

// Slot identifies a competitor within a match. SlotNone means "nobody".
type Slot int

const (
	SlotNone Slot = 0
	Slot1    Slot = 1
	Slot2    Slot = 2
)

// Valid reports whether s names one of the two competitors.
func (s Slot) Valid() bool { return s == Slot1 || s == Slot2 }

// Opponent returns the other slot.
func (s Slot) Opponent() Slot {
	switch s {
	case Slot1:
		return Slot2
	case Slot2:
		return Slot1
	}
	return SlotNone
}

func (s Slot) index() int { return int(s) - 1 }

// Outcome is a competitor's result for the current round.
type Outcome string

const (
	OutcomeUnknown   Outcome = ""
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// Phase is the match lifecycle position.
type Phase string

const (
	PhaseAwaitingAnswers Phase = "awaiting-answers"
	PhaseRoundResolved   Phase = "round-resolved"
	PhaseMatchOver       Phase = "match-over"
)

// Winner is the final result of a match.
type Winner int

const (
	WinnerNone Winner = iota
	WinnerSlot1
	WinnerSlot2
	WinnerDraw
)

// WinnerFor maps a slot to its winning result.
func WinnerFor(s Slot) Winner {
	switch s {
	case Slot1:
		return WinnerSlot1
	case Slot2:
		return WinnerSlot2
	}
	return WinnerNone
}

// Slot returns the winning slot, or SlotNone for a draw or undecided match.
func (w Winner) Slot() Slot {
	switch w {
	case WinnerSlot1:
		return Slot1
	case WinnerSlot2:
		return Slot2
	}
	return SlotNone
}

func (w Winner) String() string {
	switch w {
	case WinnerSlot1:
		return "1"
	case WinnerSlot2:
		return "2"
	case WinnerDraw:
		return "draw"
	}
	return ""
}

// MarshalText encodes the winner as "1", "2", "draw" or "".
func (w Winner) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (w *Winner) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*w = WinnerNone
	case "draw":
		*w = WinnerDraw
	default:
		n, err := strconv.Atoi(string(text))
		if err != nil || !Slot(n).Valid() {
			return fmt.Errorf("invalid winner %q", text)
		}
		*w = WinnerFor(Slot(n))
	}
	return nil
}

// Competitor is one of the two players of a versus match.
type Competitor struct {
	Slot         Slot    `json:"slot"`
	DisplayName  string  `json:"displayName"`
	Score        int     `json:"score"`
	Health       int     `json:"health"`
	PendingInput string  `json:"pendingInput"`
	LastOutcome  Outcome `json:"lastOutcome"`
}

// MatchState is the aggregate root of a versus match. It is a comparable
// value: transitions return a new state and never touch their input.
type MatchState struct {
	QuestionIndex int           `json:"questionIndex"`
	Competitors   [2]Competitor `json:"competitors"`
	RoundWinner   Slot          `json:"roundWinner"`
	DamageApplied bool          `json:"damageApplied"`
	Winner        Winner        `json:"winner"`
	Phase         Phase         `json:"phase"`
}

// Competitor returns the record for slot s. s must be valid.
func (m MatchState) Competitor(s Slot) Competitor {
	return m.Competitors[s.index()]
}

// WithCompetitor returns a copy of m with the slot's record replaced.
func (m MatchState) WithCompetitor(c Competitor) MatchState {
	m.Competitors[c.Slot.index()] = c
	return m
}

// Over reports whether the match has a final result.
func (m MatchState) Over() bool { return m.Phase == PhaseMatchOver }
