// Package peer is the PeerChannel backend: each side holds a WebSocket data
// channel to a relay that pairs the host and guest registered under the
// same peer id.
package peer

import (
	"encoding/json"
	"errors"
	"strings"

	"phonics-master/internal/domain"
)

// Frame types exchanged with the relay. The relay answers every dial with
// open or error, then forwards data and reports peer and closed events.
const (
	FrameOpen   = "open"
	FrameError  = "error"
	FrameData   = "data"
	FramePeer   = "peer"
	FrameClosed = "closed"
)

// Error codes carried by an error frame.
const (
	CodeAddressInUse = "address-in-use"
	CodeNotFound     = "not-found"
	CodeAlreadyFull  = "already-full"
	CodeBadRequest   = "bad-request"
)

const peerIDPrefix = "phonics-"

type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PeerState is the payload of open and peer frames.
type PeerState struct {
	Connected bool `json:"connected"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PeerID is the relay address of a session.
func PeerID(sessionID string) string {
	return peerIDPrefix + sessionID
}

// SessionID reverses PeerID.
func SessionID(peerID string) (string, bool) {
	if !strings.HasPrefix(peerID, peerIDPrefix) || len(peerID) == len(peerIDPrefix) {
		return "", false
	}
	return strings.TrimPrefix(peerID, peerIDPrefix), true
}

// NewFrame builds a frame with a JSON payload.
func NewFrame(typ string, payload any) Frame {
	f := Frame{Type: typ}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			f.Payload = raw
		}
	}
	return f
}

// ErrorFrame maps a session error to its wire code.
func ErrorFrame(err error) Frame {
	code := CodeBadRequest
	switch {
	case errors.Is(err, domain.ErrAddressInUse):
		code = CodeAddressInUse
	case errors.Is(err, domain.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, domain.ErrAlreadyFull):
		code = CodeAlreadyFull
	}
	return NewFrame(FrameError, ErrorPayload{Code: code, Message: err.Error()})
}

func codeError(p ErrorPayload) error {
	switch p.Code {
	case CodeAddressInUse:
		return domain.ErrAddressInUse
	case CodeNotFound:
		return domain.ErrNotFound
	case CodeAlreadyFull:
		return domain.ErrAlreadyFull
	}
	return &domain.TransportError{Op: "open", Err: errors.New(p.Message)}
}
