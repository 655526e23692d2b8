package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arko-chat/pedometer/internal/dispatcher"
	"github.com/arko-chat/pedometer/internal/ws"
)

type Handler struct {
	hub        *ws.Hub
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

func New(hub *ws.Hub, d *dispatcher.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, dispatcher: d, logger: logger}
}

type health struct {
	Status       string                  `json:"status"`
	Clients      int                     `json:"clients"`
	Subscription dispatcher.SessionState `json:"subscription"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health{
		Status:       "ok",
		Clients:      h.hub.Count(),
		Subscription: h.dispatcher.Session().State(),
	}); err != nil {
		h.logger.Warn("health encode failed", "err", err)
	}
}
