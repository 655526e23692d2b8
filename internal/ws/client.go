package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arko-chat/pedometer/internal/dispatcher"
	"github.com/arko-chat/pedometer/internal/models"
)

const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
	SendBuffer     = 256
)

var (
	ErrClosed     = errors.New("ws: client closed")
	ErrBufferFull = errors.New("ws: send buffer full")
)

// Client is one script context connected over a websocket. It is the
// dispatcher.Responder for every call read from that socket.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ dispatcher.Responder = (*Client)(nil)

func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     "ws-" + uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, SendBuffer),
		logger: logger,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues resp for the write pump without blocking. A client that
// cannot keep up is closed, which ends its read pump and detaches it.
func (c *Client) Send(resp models.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("ws send buffer full, closing client", "client", c.id)
		c.closed = true
		close(c.send)
		return ErrBufferFull
	}
}

// Close stops the write pump, which then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump decodes calls until the socket closes. onCall runs on the
// read goroutine, so calls from one socket are handled in order.
func (c *Client) ReadPump(ctx context.Context, onCall func(context.Context, models.Call)) {
	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws read failed", "client", c.id, "err", err)
			}
			return
		}

		var call models.Call
		if err := json.Unmarshal(raw, &call); err != nil {
			c.logger.Warn("ws malformed call", "client", c.id, "err", err)
			continue
		}
		if call.CallID == "" || call.Method == "" {
			c.logger.Warn("ws call missing id or method", "client", c.id)
			continue
		}

		onCall(ctx, call)
	}
}
