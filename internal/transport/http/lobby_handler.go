package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"phonics-master/internal/session"
)

// Room is a session waiting for a guest.
type Room struct {
	Code      string       `json:"code"`
	Backend   session.Kind `json:"backend"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RoomSource lists waiting rooms on one backend.
type RoomSource func(ctx context.Context) ([]Room, error)

type LobbyHandler struct {
	sources []RoomSource
	log     *zap.Logger
}

func NewLobbyHandler(log *zap.Logger, sources ...RoomSource) *LobbyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LobbyHandler{sources: sources, log: log}
}

// ServeRooms answers GET /rooms. A failing source is logged and skipped.
func (h *LobbyHandler) ServeRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rooms := []Room{}
	for _, source := range h.sources {
		found, err := source(r.Context())
		if err != nil {
			h.log.Warn("list rooms failed", zap.Error(err))
			continue
		}
		rooms = append(rooms, found...)
	}
	writeJSON(w, http.StatusOK, rooms)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
