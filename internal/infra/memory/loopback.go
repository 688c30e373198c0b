package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
	"phonics-master/internal/session"
)

// Loopback is an in-process session hub. Both sides of a match live in the
// same process, which suits same-device play and tests.
type Loopback struct {
	log      *zap.Logger
	mu       sync.Mutex
	sessions map[string]*loopSession
}

type loopSession struct {
	host  *loopConn
	guest *loopConn
}

func NewLoopback(log *zap.Logger) *Loopback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loopback{
		log:      log,
		sessions: make(map[string]*loopSession),
	}
}

func (l *Loopback) Kind() session.Kind { return session.KindLocalLoopback }

func (l *Loopback) Host(_ context.Context, sessionID string) (session.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[sessionID]; ok {
		return nil, session.HostError(sessionID, domain.ErrAddressInUse)
	}
	conn := l.newConn(sessionID, session.RoleHost, false)
	l.sessions[sessionID] = &loopSession{host: conn}
	return conn, nil
}

func (l *Loopback) Join(_ context.Context, sessionID string) (session.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[sessionID]
	if !ok {
		return nil, session.JoinError(sessionID, domain.ErrNotFound)
	}
	if s.guest != nil {
		return nil, session.JoinError(sessionID, domain.ErrAlreadyFull)
	}
	s.guest = l.newConn(sessionID, session.RoleGuest, true)
	s.host.SetConnected(true)
	return s.guest, nil
}

// Sessions reports how many sessions are open.
func (l *Loopback) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Loopback) newConn(sessionID string, role session.Role, connected bool) *loopConn {
	peerID := uuid.NewString()
	return &loopConn{
		Endpoint: session.NewEndpoint(sessionID, role, connected, l.log.With(zap.String("peer", peerID))),
		hub:      l,
		peerID:   peerID,
	}
}

func (l *Loopback) peerOf(c *loopConn) *loopConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[c.ID()]
	if !ok {
		return nil
	}
	switch c {
	case s.host:
		return s.guest
	case s.guest:
		return s.host
	}
	return nil
}

func (l *Loopback) leave(c *loopConn) {
	l.mu.Lock()
	s, ok := l.sessions[c.ID()]
	var peer *loopConn
	if ok {
		switch c {
		case s.host:
			delete(l.sessions, c.ID())
			peer = s.guest
		case s.guest:
			s.guest = nil
			peer = s.host
		}
	}
	l.mu.Unlock()

	if peer == nil {
		return
	}
	if c.Role() == session.RoleHost {
		peer.Fail("host left the session")
		return
	}
	peer.SetConnected(false)
}

type loopConn struct {
	*session.Endpoint
	hub    *Loopback
	peerID string
}

// Send round-trips msg through the wire codec so both sides never share
// memory, exactly as they would over a network.
func (c *loopConn) Send(_ context.Context, msg match.Message) error {
	if c.Closed() {
		return session.SendError(domain.ErrSessionClosed)
	}
	peer := c.hub.peerOf(c)
	if peer == nil {
		return session.SendError(domain.ErrNotConnected)
	}
	data, err := match.Encode(msg)
	if err != nil {
		return session.SendError(err)
	}
	decoded, err := match.Decode(data)
	if err != nil {
		return session.SendError(err)
	}
	peer.Deliver(decoded)
	return nil
}

func (c *loopConn) Leave(_ context.Context) error {
	if c.Closed() {
		return nil
	}
	c.hub.leave(c)
	c.Close()
	return nil
}
