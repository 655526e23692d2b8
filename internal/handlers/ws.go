package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arko-chat/pedometer/internal/models"
	"github.com/arko-chat/pedometer/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWS serves one script context. Closing the socket detaches it from
// the dispatcher, which stops a subscription it owned.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	client := ws.NewClient(conn, h.logger)
	h.hub.Register(client)
	defer func() {
		h.dispatcher.Detach(client)
		h.hub.Unregister(client)
	}()

	go client.WritePump()

	client.ReadPump(r.Context(), func(ctx context.Context, call models.Call) {
		h.dispatcher.Dispatch(ctx, call, client)
	})
}
