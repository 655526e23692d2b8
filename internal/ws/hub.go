package ws

import (
	"log/slog"

	"github.com/puzpuzpuz/xsync/v4"
)

// Hub tracks connected script contexts.
type Hub struct {
	clients *xsync.Map[string, *Client]
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: xsync.NewMap[string, *Client](),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.clients.Store(c.ID(), c)
	h.logger.Debug("ws register", "client", c.ID(), "clients", h.Count())
}

func (h *Hub) Unregister(c *Client) {
	if _, ok := h.clients.LoadAndDelete(c.ID()); !ok {
		return
	}
	c.Close()
	h.logger.Debug("ws unregister", "client", c.ID())
}

func (h *Hub) Count() int {
	return h.clients.Size()
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.clients.Range(func(id string, c *Client) bool {
		h.clients.Delete(id)
		c.Close()
		return true
	})
}
