package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressInUse is returned when hosting under a code that is already active.
	ErrAddressInUse = errors.New("session code already in use")
	// ErrNotFound is returned when joining a session that does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyFull is returned when a second guest tries to join.
	ErrAlreadyFull = errors.New("session already has a guest")
	// ErrNotConnected indicates there is no peer to deliver a message to.
	ErrNotConnected = errors.New("no peer connected")
	// ErrSessionClosed is returned by handles that have already left.
	ErrSessionClosed = errors.New("session closed")
	// ErrCorruptLevels is returned by level stores holding unreadable data.
	ErrCorruptLevels = errors.New("stored levels are corrupt")
	// ErrNoQuestions is returned when a match is started without levels.
	ErrNoQuestions = errors.New("no questions available")
	// ErrMatchNotStarted is returned for moves made before the match began.
	ErrMatchNotStarted = errors.New("match not started")
	// ErrWrongSlot is returned when a networked player acts for the opponent.
	ErrWrongSlot = errors.New("slot belongs to the other player")
	// ErrHostAuthority is returned when a connected guest tries to drive rounds.
	ErrHostAuthority = errors.New("only the host advances rounds")
)

// ValidationError reports malformed level data.
type ValidationError struct {
	QuestionID int
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.QuestionID == 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("question %d: invalid %s: %s", e.QuestionID, e.Field, e.Reason)
}

// SessionError wraps a host or join failure. The session does not start.
type SessionError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// TransportError wraps a mid-match send or receive failure. It never aborts
// the local match.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
