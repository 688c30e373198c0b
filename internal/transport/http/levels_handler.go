package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"phonics-master/internal/app"
	"phonics-master/internal/domain"
)

// LevelsHandler is the admin surface over the level store.
type LevelsHandler struct {
	service *app.LevelService
	log     *zap.Logger
}

func NewLevelsHandler(service *app.LevelService, log *zap.Logger) *LevelsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LevelsHandler{service: service, log: log}
}

type errorBody struct {
	Error string `json:"error"`
}

// maxLevelsBody caps a PUT /levels body.
const maxLevelsBody = 1 << 20

// ServeLevels answers GET /levels and PUT /levels (wholesale overwrite).
func (h *LevelsHandler) ServeLevels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		levels, err := h.service.Levels(r.Context())
		if err != nil {
			h.log.Error("load levels failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "load levels failed"})
			return
		}
		writeJSON(w, http.StatusOK, levels)
	case http.MethodPut:
		var levels []domain.Question
		r.Body = http.MaxBytesReader(w, r.Body, maxLevelsBody)
		if err := json.NewDecoder(r.Body).Decode(&levels); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "levels payload too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid levels payload"})
			return
		}
		if err := h.service.Save(r.Context(), levels); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) || errors.Is(err, domain.ErrNoQuestions) {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
				return
			}
			h.log.Error("save levels failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "save levels failed"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
