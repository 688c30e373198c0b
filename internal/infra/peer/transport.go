package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
	"phonics-master/internal/session"
)

const (
	openTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Transport dials the relay at RelayURL (http, https, ws or wss).
type Transport struct {
	relayURL string
	dialer   *websocket.Dialer
	log      *zap.Logger
}

func NewTransport(relayURL string, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{relayURL: relayURL, dialer: websocket.DefaultDialer, log: log}
}

func (t *Transport) Kind() session.Kind { return session.KindPeerChannel }

func (t *Transport) Host(ctx context.Context, sessionID string) (session.Handle, error) {
	c, err := t.dial(ctx, sessionID, session.RoleHost)
	if err != nil {
		return nil, session.HostError(sessionID, err)
	}
	return c, nil
}

func (t *Transport) Join(ctx context.Context, sessionID string) (session.Handle, error) {
	c, err := t.dial(ctx, sessionID, session.RoleGuest)
	if err != nil {
		return nil, session.JoinError(sessionID, err)
	}
	return c, nil
}

func (t *Transport) dial(ctx context.Context, sessionID string, role session.Role) (*peerConn, error) {
	endpoint, err := relayEndpoint(t.relayURL, sessionID, role)
	if err != nil {
		return nil, err
	}
	ws, _, err := t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &domain.TransportError{Op: "dial", Err: err}
	}

	_ = ws.SetReadDeadline(time.Now().Add(openTimeout))
	var first Frame
	if err := ws.ReadJSON(&first); err != nil {
		ws.Close()
		return nil, &domain.TransportError{Op: "open", Err: err}
	}
	_ = ws.SetReadDeadline(time.Time{})

	switch first.Type {
	case FrameOpen:
	case FrameError:
		ws.Close()
		var p ErrorPayload
		if err := json.Unmarshal(first.Payload, &p); err != nil {
			return nil, &domain.TransportError{Op: "open", Err: err}
		}
		return nil, codeError(p)
	default:
		ws.Close()
		return nil, &domain.TransportError{Op: "open", Err: fmt.Errorf("unexpected frame %q", first.Type)}
	}

	var state PeerState
	_ = json.Unmarshal(first.Payload, &state)
	c := &peerConn{
		Endpoint: session.NewEndpoint(sessionID, role, state.Connected, t.log.With(zap.String("peer", PeerID(sessionID)))),
		ws:       ws,
	}
	go c.read()
	return c, nil
}

func relayEndpoint(raw, sessionID string, role session.Role) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/peer"
	q := url.Values{}
	q.Set("peer", PeerID(sessionID))
	q.Set("role", string(role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type peerConn struct {
	*session.Endpoint
	ws *websocket.Conn
	wm sync.Mutex
}

func (c *peerConn) Send(_ context.Context, msg match.Message) error {
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
	if err := c.write(Frame{Type: FrameData, Payload: data}); err != nil {
		return session.SendError(err)
	}
	return nil
}

func (c *peerConn) Leave(_ context.Context) error {
	if c.Closed() {
		return nil
	}
	c.Close()
	c.wm.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wm.Unlock()
	_ = c.ws.Close()
	if err != nil && err != websocket.ErrCloseSent {
		return &domain.TransportError{Op: "leave", Err: err}
	}
	return nil
}

// write serializes writers; gorilla allows one concurrent writer.
func (c *peerConn) write(f Frame) error {
	c.wm.Lock()
	defer c.wm.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(f)
}

func (c *peerConn) read() {
	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !c.Closed() {
				c.Fail("relay connection lost: " + err.Error())
			}
			return
		}
		switch f.Type {
		case FrameData:
			msg, err := match.Decode(f.Payload)
			if err != nil {
				c.Log().Warn("dropping undecodable message", zap.Error(&domain.TransportError{Op: "receive", Err: err}))
				continue
			}
			c.Deliver(msg)
		case FramePeer:
			var state PeerState
			if err := json.Unmarshal(f.Payload, &state); err != nil {
				c.Log().Warn("dropping malformed peer frame", zap.Error(err))
				continue
			}
			c.SetConnected(state.Connected)
		case FrameClosed:
			c.Fail("host left the session")
		default:
			c.Log().Warn("unexpected frame", zap.String("type", f.Type))
		}
	}
}
