// Package session defines the transport contract shared by every versus
// backend and the bookkeeping they have in common.
package session

import (
	"context"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
)

// Kind names a transport backend.
type Kind string

const (
	KindLocalLoopback Kind = "local"
	KindStoragePoll   Kind = "poll"
	KindPeerChannel   Kind = "peer"
	KindRealtimeDB    Kind = "realtime"
)

// Role is the side of a session a handle represents.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Slot is the competitor slot played from this side of the session.
func (r Role) Slot() domain.Slot {
	if r == RoleHost {
		return domain.Slot1
	}
	return domain.Slot2
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Status is what a consumer sees of a connection: a flag and the last error.
type Status struct {
	Connected bool   `json:"connected"`
	Err       string `json:"error,omitempty"`
}

// Transport establishes sessions on one backend.
type Transport interface {
	Kind() Kind
	Host(ctx context.Context, sessionID string) (Handle, error)
	Join(ctx context.Context, sessionID string) (Handle, error)
}

// Handle is one side of an established session.
type Handle interface {
	ID() string
	Role() Role
	// Send relays msg to the peer. It returns a *domain.TransportError when
	// no peer is connected; callers log it and carry on.
	Send(ctx context.Context, msg match.Message) error
	// OnReceive replaces the single active handler.
	OnReceive(fn func(match.Message))
	Status() Status
	// Leave releases the session. A host leaving ends it for both sides.
	Leave(ctx context.Context) error
}

// HostError wraps a host failure.
func HostError(sessionID string, err error) error {
	return &domain.SessionError{Op: "host", SessionID: sessionID, Err: err}
}

// JoinError wraps a join failure.
func JoinError(sessionID string, err error) error {
	return &domain.SessionError{Op: "join", SessionID: sessionID, Err: err}
}

// SendError wraps a failed delivery.
func SendError(err error) error {
	return &domain.TransportError{Op: "send", Err: err}
}
