package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
	"phonics-master/internal/session"
)

// Envelope kinds carried on a room channel.
const (
	kindData     = "data"
	kindPresence = "presence"
	kindClosed   = "closed"
)

// envelope is the NOTIFY payload. Both sides listen on the same channel and
// skip their own envelopes by peer id.
type envelope struct {
	From string          `json:"from"`
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

type presence struct {
	Role   session.Role `json:"role"`
	Online bool         `json:"online"`
}

// Room is a lobby entry.
type Room struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// RealtimeTransport keeps session rows in the rooms table and relays
// messages with LISTEN/NOTIFY on channel room_{code}.
type RealtimeTransport struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	// JoinTimeout bounds how long Join waits for the host to answer.
	JoinTimeout time.Duration
}

func NewRealtimeTransport(pool *pgxpool.Pool, log *zap.Logger) *RealtimeTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &RealtimeTransport{pool: pool, log: log, JoinTimeout: 5 * time.Second}
}

func (t *RealtimeTransport) Kind() session.Kind { return session.KindRealtimeDB }

func (t *RealtimeTransport) Host(ctx context.Context, sessionID string) (session.Handle, error) {
	peerID := uuid.NewString()
	tag, err := t.pool.Exec(ctx,
		`INSERT INTO rooms (code, host_id, status) VALUES ($1, $2, 'waiting') ON CONFLICT (code) DO NOTHING`,
		sessionID, peerID)
	if err != nil {
		return nil, session.HostError(sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, session.HostError(sessionID, domain.ErrAddressInUse)
	}

	c, err := t.start(ctx, sessionID, session.RoleHost, peerID, false)
	if err != nil {
		_, _ = t.pool.Exec(ctx, `DELETE FROM rooms WHERE code=$1`, sessionID)
		return nil, session.HostError(sessionID, err)
	}
	return c, nil
}

func (t *RealtimeTransport) Join(ctx context.Context, sessionID string) (session.Handle, error) {
	peerID := uuid.NewString()
	tag, err := t.pool.Exec(ctx,
		`UPDATE rooms SET guest_id=$2, status='ready' WHERE code=$1 AND guest_id IS NULL`,
		sessionID, peerID)
	if err != nil {
		return nil, session.JoinError(sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE code=$1)`, sessionID).Scan(&exists); err != nil {
			return nil, session.JoinError(sessionID, err)
		}
		if exists {
			return nil, session.JoinError(sessionID, domain.ErrAlreadyFull)
		}
		return nil, session.JoinError(sessionID, domain.ErrNotFound)
	}

	c, err := t.start(ctx, sessionID, session.RoleGuest, peerID, false)
	if err != nil {
		_, _ = t.pool.Exec(ctx, `UPDATE rooms SET guest_id=NULL, status='waiting' WHERE code=$1 AND guest_id=$2`, sessionID, peerID)
		return nil, session.JoinError(sessionID, err)
	}
	if err := c.notify(ctx, kindPresence, presence{Role: session.RoleGuest, Online: true}); err != nil {
		_ = c.Leave(context.Background())
		return nil, session.JoinError(sessionID, err)
	}

	// The guest counts as connected only once the host answers.
	timer := time.NewTimer(t.JoinTimeout)
	defer timer.Stop()
	select {
	case <-c.hostSeen:
		return c, nil
	case <-ctx.Done():
		_ = c.Leave(context.Background())
		return nil, session.JoinError(sessionID, ctx.Err())
	case <-timer.C:
		_ = c.Leave(context.Background())
		return nil, session.JoinError(sessionID, fmt.Errorf("host not responding: %w", domain.ErrNotFound))
	}
}

// ListWaitingRooms returns rooms still waiting for a guest, newest first.
func (t *RealtimeTransport) ListWaitingRooms(ctx context.Context, limit int) ([]Room, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.pool.Query(ctx,
		`SELECT code, created_at FROM rooms WHERE status='waiting' ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.Code, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// start subscribes a dedicated connection to the room channel before
// returning, so nothing sent after Host or Join returns is missed.
func (t *RealtimeTransport) start(ctx context.Context, sessionID string, role session.Role, peerID string, connected bool) (*realtimeConn, error) {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	channel := channelName(sessionID)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	c := newRealtimeConn(t, sessionID, role, peerID, connected)
	listenCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.listen(listenCtx, conn)
	return c, nil
}

type realtimeConn struct {
	*session.Endpoint
	t       *RealtimeTransport
	peerID  string
	channel string
	cancel  context.CancelFunc
	stopped chan struct{}

	// hostSeen is closed the first time the host announces itself.
	hostSeen chan struct{}
	seenOnce sync.Once
	// announce publishes this side's presence.
	announce func(ctx context.Context, p presence) error
}

func newRealtimeConn(t *RealtimeTransport, sessionID string, role session.Role, peerID string, connected bool) *realtimeConn {
	c := &realtimeConn{
		Endpoint: session.NewEndpoint(sessionID, role, connected, t.log.With(zap.String("peer", peerID))),
		t:        t,
		peerID:   peerID,
		channel:  channelName(sessionID),
		cancel:   func() {},
		stopped:  make(chan struct{}),
		hostSeen: make(chan struct{}),
	}
	c.announce = func(ctx context.Context, p presence) error {
		return c.notify(ctx, kindPresence, p)
	}
	return c
}

func (c *realtimeConn) Send(ctx context.Context, msg match.Message) error {
	if c.Closed() {
		return session.SendError(domain.ErrSessionClosed)
	}
	if !c.Connected() {
		return session.SendError(domain.ErrNotConnected)
	}
	data, err := match.Encode(msg)
	if err != nil {
		return session.SendError(err)
	}
	if err := c.notify(ctx, kindData, json.RawMessage(data)); err != nil {
		return session.SendError(err)
	}
	return nil
}

func (c *realtimeConn) Leave(ctx context.Context) error {
	if c.Closed() {
		return nil
	}
	c.cancel()
	<-c.stopped
	c.Close()

	if c.Role() == session.RoleHost {
		if _, err := c.t.pool.Exec(ctx, `DELETE FROM rooms WHERE code=$1`, c.ID()); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
		return c.notify(ctx, kindClosed, nil)
	}
	if _, err := c.t.pool.Exec(ctx,
		`UPDATE rooms SET guest_id=NULL, status='waiting' WHERE code=$1 AND guest_id=$2`,
		c.ID(), c.peerID); err != nil {
		return fmt.Errorf("release room: %w", err)
	}
	return c.notify(ctx, kindPresence, presence{Role: session.RoleGuest, Online: false})
}

func (c *realtimeConn) notify(ctx context.Context, kind string, body any) error {
	env := envelope{From: c.peerID, Kind: kind}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		env.Body = raw
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = c.t.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, c.channel, string(payload))
	return err
}

func (c *realtimeConn) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer close(c.stopped)
	defer func() {
		// The connection still holds the LISTEN; close it rather than
		// hand it back to the pool.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.Fail(err.Error())
			}
			return
		}
		c.handle([]byte(n.Payload))
	}
}

func (c *realtimeConn) handle(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.Log().Warn("dropping malformed envelope", zap.Error(err))
		return
	}
	if env.From == c.peerID {
		return
	}
	switch env.Kind {
	case kindPresence:
		var p presence
		if err := json.Unmarshal(env.Body, &p); err != nil {
			c.Log().Warn("dropping malformed presence", zap.Error(err))
			return
		}
		if p.Role == c.Role() {
			return
		}
		c.SetConnected(p.Online)
		switch {
		case c.Role() == session.RoleHost && p.Online:
			// Answer so a joining guest knows someone is listening.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.announce(ctx, presence{Role: session.RoleHost, Online: true}); err != nil {
				c.Log().Warn("announce presence failed", zap.Error(err))
			}
		case c.Role() == session.RoleGuest && p.Online:
			c.seenOnce.Do(func() { close(c.hostSeen) })
		}
	case kindClosed:
		if c.Role() == session.RoleGuest {
			c.Fail("host left the session")
		}
	case kindData:
		msg, err := match.Decode(env.Body)
		if err != nil {
			c.Log().Warn("dropping undecodable message", zap.Error(&domain.TransportError{Op: "receive", Err: err}))
			return
		}
		c.Deliver(msg)
	default:
		c.Log().Warn("unknown envelope kind", zap.String("kind", env.Kind))
	}
}

func channelName(sessionID string) string {
	return "room_" + strings.ToLower(sessionID)
}
