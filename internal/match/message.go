package match

import (
	"encoding/json"
	"fmt"

	"phonics-master/internal/domain"
)

// Operation names a replayable transition on the wire.
type Operation string

const (
	OpJoin             Operation = "join"
	OpStartMatch       Operation = "startMatch"
	OpSubmitAnswer     Operation = "submitAnswer"
	OpApplyRoundDamage Operation = "applyRoundDamage"
	OpAdvanceRound     Operation = "advanceRound"
	OpMatchOver        Operation = "matchOver"
)

// Message is the closed set of operation-replay messages. Each variant
// carries only what its transition needs.
type Message interface {
	Operation() Operation
	isMessage()
}

// Join is sent by a guest right after connecting.
type Join struct {
	Name string `json:"name"`
}

// MatchStarted carries everything a guest needs to build the opening state.
type MatchStarted struct {
	Names     [2]string         `json:"names"`
	Questions []domain.Question `json:"questions"`
}

// AnswerSubmitted replays an answer for the round at index Round.
type AnswerSubmitted struct {
	Round  int         `json:"round"`
	Slot   domain.Slot `json:"slot"`
	Answer string      `json:"answer"`
}

// DamageApplied replays the damage step of round Round.
type DamageApplied struct {
	Round int `json:"round"`
}

// RoundAdvanced replays leaving round Round.
type RoundAdvanced struct {
	Round          int `json:"round"`
	TotalQuestions int `json:"totalQuestions"`
}

// MatchOver announces the final result.
type MatchOver struct {
	Winner domain.Winner `json:"winner"`
}

func (Join) Operation() Operation            { return OpJoin }
func (MatchStarted) Operation() Operation    { return OpStartMatch }
func (AnswerSubmitted) Operation() Operation { return OpSubmitAnswer }
func (DamageApplied) Operation() Operation   { return OpApplyRoundDamage }
func (RoundAdvanced) Operation() Operation   { return OpAdvanceRound }
func (MatchOver) Operation() Operation       { return OpMatchOver }

func (Join) isMessage()            {}
func (MatchStarted) isMessage()    {}
func (AnswerSubmitted) isMessage() {}
func (DamageApplied) isMessage()   {}
func (RoundAdvanced) isMessage()   {}
func (MatchOver) isMessage()       {}

type envelope struct {
	Operation Operation       `json:"operation"`
	Arguments json.RawMessage `json:"arguments"`
}

// Encode serializes msg as {"operation": ..., "arguments": {...}}.
func Encode(msg Message) ([]byte, error) {
	args, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Operation(), err)
	}
	return json.Marshal(envelope{Operation: msg.Operation(), Arguments: args})
}

// Decode parses a wire message produced by Encode.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg Message
	var err error
	switch env.Operation {
	case OpJoin:
		msg, err = decodeArgs[Join](env.Arguments)
	case OpStartMatch:
		msg, err = decodeArgs[MatchStarted](env.Arguments)
	case OpSubmitAnswer:
		msg, err = decodeArgs[AnswerSubmitted](env.Arguments)
	case OpApplyRoundDamage:
		msg, err = decodeArgs[DamageApplied](env.Arguments)
	case OpAdvanceRound:
		msg, err = decodeArgs[RoundAdvanced](env.Arguments)
	case OpMatchOver:
		msg, err = decodeArgs[MatchOver](env.Arguments)
	default:
		return nil, fmt.Errorf("unknown operation %q", env.Operation)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Operation, err)
	}
	return msg, nil
}

func decodeArgs[T Message](raw json.RawMessage) (Message, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
