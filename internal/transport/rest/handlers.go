package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/Hiiirsch/tictactoe/internal/registry"
)

type Handlers struct {
	logger   *slog.Logger
	registry *registry.Registry
}

func NewHandlers(logger *slog.Logger, reg *registry.Registry) *Handlers {
	return &Handlers{
		logger:   logger,
		registry: reg,
	}
}

// CreateGame - POST /games: creates a room and returns its code.
func (that *Handlers) CreateGame(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	room := that.registry.Create()

	that.logger.Info("room created", "code", room.Code)

	writeJSON(w, http.StatusCreated, map[string]string{"code": room.Code})
}

// GetGame - GET /games/:code: returns the live room snapshot. Lookup is
// case-insensitive.
func (that *Handlers) GetGame(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	room, err := that.registry.Get(params.ByName("code"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid_code"})
		return
	}

	writeJSON(w, http.StatusOK, room.Snapshot())
}

// Health - GET /health.
func (that *Handlers) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
