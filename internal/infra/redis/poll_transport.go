package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
	"phonics-master/internal/session"
)

// PollTransport shares sessions through Redis and polls for messages, the
// way two tabs of one browser share local storage.
//
//	HSETNX phonics:session:{id} host|guest {peerID}   claim a side
//	RPUSH  phonics:session:{id}:inbox:{role} {json}   message to that side
//
// Each side drains its inbox with MULTI LRANGE+DEL on every tick and checks
// the session hash for its peer.
type PollTransport struct {
	client   *redis.Client
	interval time.Duration
	ttl      time.Duration
	log      *zap.Logger
}

func NewPollTransport(client *redis.Client, interval, ttl time.Duration, log *zap.Logger) *PollTransport {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollTransport{client: client, interval: interval, ttl: ttl, log: log}
}

func (t *PollTransport) Kind() session.Kind { return session.KindStoragePoll }

func (t *PollTransport) Host(ctx context.Context, sessionID string) (session.Handle, error) {
	peerID := uuid.NewString()
	ok, err := t.client.HSetNX(ctx, sessionKey(sessionID), string(session.RoleHost), peerID).Result()
	if err != nil {
		return nil, session.HostError(sessionID, err)
	}
	if !ok {
		return nil, session.HostError(sessionID, domain.ErrAddressInUse)
	}

	pipe := t.client.TxPipeline()
	pipe.Del(ctx, inboxKey(sessionID, session.RoleHost), inboxKey(sessionID, session.RoleGuest))
	if t.ttl > 0 {
		pipe.Expire(ctx, sessionKey(sessionID), t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		_ = t.client.Del(ctx, sessionKey(sessionID)).Err()
		return nil, session.HostError(sessionID, err)
	}
	return t.start(sessionID, session.RoleHost, peerID, false), nil
}

func (t *PollTransport) Join(ctx context.Context, sessionID string) (session.Handle, error) {
	hosted, err := t.client.HExists(ctx, sessionKey(sessionID), string(session.RoleHost)).Result()
	if err != nil {
		return nil, session.JoinError(sessionID, err)
	}
	if !hosted {
		return nil, session.JoinError(sessionID, domain.ErrNotFound)
	}

	peerID := uuid.NewString()
	ok, err := t.client.HSetNX(ctx, sessionKey(sessionID), string(session.RoleGuest), peerID).Result()
	if err != nil {
		return nil, session.JoinError(sessionID, err)
	}
	if !ok {
		return nil, session.JoinError(sessionID, domain.ErrAlreadyFull)
	}
	if err := t.client.Del(ctx, inboxKey(sessionID, session.RoleGuest)).Err(); err != nil {
		return nil, session.JoinError(sessionID, err)
	}
	return t.start(sessionID, session.RoleGuest, peerID, true), nil
}

func (t *PollTransport) start(sessionID string, role session.Role, peerID string, connected bool) *pollConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &pollConn{
		Endpoint: session.NewEndpoint(sessionID, role, connected, t.log.With(zap.String("peer", peerID))),
		t:        t,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go c.poll(ctx)
	return c
}

type pollConn struct {
	*session.Endpoint
	t       *PollTransport
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (c *pollConn) Send(ctx context.Context, msg match.Message) error {
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
	key := inboxKey(c.ID(), c.Role().Other())
	pipe := c.t.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if c.t.ttl > 0 {
		pipe.Expire(ctx, key, c.t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return session.SendError(err)
	}
	return nil
}

func (c *pollConn) Leave(ctx context.Context) error {
	if c.Closed() {
		return nil
	}
	c.cancel()
	<-c.stopped
	c.Close()

	id := c.ID()
	if c.Role() == session.RoleHost {
		return c.t.client.Del(ctx, sessionKey(id), inboxKey(id, session.RoleHost), inboxKey(id, session.RoleGuest)).Err()
	}
	pipe := c.t.client.TxPipeline()
	pipe.HDel(ctx, sessionKey(id), string(session.RoleGuest))
	pipe.Del(ctx, inboxKey(id, session.RoleGuest))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *pollConn) poll(ctx context.Context) {
	defer close(c.stopped)
	ticker := time.NewTicker(c.t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick(ctx) {
				return
			}
		}
	}
}

// tick refreshes presence and drains the inbox. It returns false once the
// session is gone for good.
func (c *pollConn) tick(ctx context.Context) bool {
	sides, err := c.t.client.HGetAll(ctx, sessionKey(c.ID())).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.Fail(err.Error())
		}
		return true
	}
	if sides[string(session.RoleHost)] == "" {
		if c.Role() == session.RoleGuest {
			c.Fail("host left the session")
		} else {
			c.Fail("session expired")
		}
		return false
	}
	if c.Role() == session.RoleHost && c.t.ttl > 0 {
		if err := c.t.client.Expire(ctx, sessionKey(c.ID()), c.t.ttl).Err(); err != nil && ctx.Err() == nil {
			c.Log().Warn("refresh session ttl failed", zap.Error(err))
		}
	}
	c.SetConnected(sides[string(c.Role().Other())] != "")

	key := inboxKey(c.ID(), c.Role())
	var pending *redis.StringSliceCmd
	_, err = c.t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			c.Log().Warn("drain inbox failed", zap.Error(err))
		}
		return true
	}
	for _, raw := range pending.Val() {
		msg, err := match.Decode([]byte(raw))
		if err != nil {
			c.Log().Warn("dropping undecodable message", zap.Error(&domain.TransportError{Op: "receive", Err: err}))
			continue
		}
		c.Deliver(msg)
	}
	return true
}

func sessionKey(sessionID string) string {
	return "phonics:session:" + sessionID
}

func inboxKey(sessionID string, role session.Role) string {
	return "phonics:session:" + sessionID + ":inbox:" + string(role)
}
