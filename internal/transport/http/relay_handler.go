package http

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"phonics-master/internal/domain"
	"phonics-master/internal/infra/peer"
	"phonics-master/internal/session"
)

// RelayHandler pairs one host and one guest per peer id and forwards data
// frames between them.
type RelayHandler struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	// WriteTimeout bounds each frame written to a peer. A peer that stops
	// reading is dropped once it expires.
	WriteTimeout time.Duration

	mu    sync.Mutex
	rooms map[string]*relayRoom
}

type relayRoom struct {
	host      *relayPeer
	guest     *relayPeer
	createdAt time.Time
}

type relayPeer struct {
	role session.Role
	send chan peer.Frame
	done chan struct{}
}

func NewRelayHandler(log *zap.Logger) *RelayHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RelayHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:          log,
		WriteTimeout: 10 * time.Second,
		rooms:        make(map[string]*relayRoom),
	}
}

// ServeWS upgrades /peer?peer={id}&role={host|guest} and relays until
// either side drops.
func (h *RelayHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peer")
	role := session.Role(r.URL.Query().Get("role"))
	if _, ok := peer.SessionID(peerID); !ok || (role != session.RoleHost && role != session.RoleGuest) {
		http.Error(w, "missing peer or role", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	log := h.log.With(zap.String("peer", peerID), zap.String("role", string(role)))

	p := &relayPeer{role: role, send: make(chan peer.Frame, 64), done: make(chan struct{})}
	other, err := h.attach(peerID, p)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
		_ = conn.WriteJSON(peer.ErrorFrame(err))
		return
	}
	log.Info("peer attached")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case f := <-p.send:
				_ = conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
				if err := conn.WriteJSON(f); err != nil {
					log.Warn("ws write error", zap.Error(err))
					conn.Close()
					return
				}
			case <-p.done:
				return
			}
		}
	}()

	p.push(peer.NewFrame(peer.FrameOpen, peer.PeerState{Connected: other != nil}))
	if other != nil {
		other.push(peer.NewFrame(peer.FramePeer, peer.PeerState{Connected: true}))
	}

	for {
		var f peer.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if f.Type != peer.FrameData {
			continue
		}
		if target := h.counterpart(peerID, p); target != nil {
			target.push(f)
		}
	}

	h.detach(peerID, p)
	close(p.done)
	<-writerDone
	log.Info("peer detached")
}

// WaitingRooms lists sessions whose host is still alone, oldest first.
func (h *RelayHandler) WaitingRooms() []Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := make([]Room, 0, len(h.rooms))
	for id, room := range h.rooms {
		if room.guest != nil {
			continue
		}
		code, _ := peer.SessionID(id)
		rooms = append(rooms, Room{Code: code, Backend: session.KindPeerChannel, CreatedAt: room.createdAt})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms
}

func (h *RelayHandler) attach(peerID string, p *relayPeer) (*relayPeer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[peerID]
	if p.role == session.RoleHost {
		if ok {
			return nil, domain.ErrAddressInUse
		}
		h.rooms[peerID] = &relayRoom{host: p, createdAt: time.Now()}
		return nil, nil
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	if room.guest != nil {
		return nil, domain.ErrAlreadyFull
	}
	room.guest = p
	return room.host, nil
}

func (h *RelayHandler) counterpart(peerID string, p *relayPeer) *relayPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[peerID]
	if !ok {
		return nil
	}
	if p == room.host {
		return room.guest
	}
	if p == room.guest {
		return room.host
	}
	return nil
}

// detach removes p. A departing host closes the room for its guest.
func (h *RelayHandler) detach(peerID string, p *relayPeer) {
	h.mu.Lock()
	room, ok := h.rooms[peerID]
	var notify *relayPeer
	var frame peer.Frame
	switch {
	case !ok:
	case p == room.host:
		delete(h.rooms, peerID)
		notify, frame = room.guest, peer.NewFrame(peer.FrameClosed, nil)
	case p == room.guest:
		room.guest = nil
		notify, frame = room.host, peer.NewFrame(peer.FramePeer, peer.PeerState{Connected: false})
	}
	h.mu.Unlock()

	if notify != nil {
		notify.push(frame)
	}
}

// push queues f unless the peer has gone.
func (p *relayPeer) push(f peer.Frame) {
	select {
	case p.send <- f:
	case <-p.done:
	}
}
