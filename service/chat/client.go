package chat

import (
	"sync"
	"time"

	"ChatRelay/logger"

	"github.com/gorilla/websocket"
)

// Client represents a user session connected to the gateway.
// A single user may have multiple devices/connections, each maintained separately.
type Client struct {
	ConnID string          // Unique connection ID (unique within the local gateway)
	UserID string          // User ID (from the connect query)
	WS     *websocket.Conn // WebSocket connection object
	Send   chan []byte     // Outbound message queue (consumed by a single writer goroutine)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a new client connection object.
func NewClient(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Push enqueues a payload without blocking; a slow client just drops.
func (c *Client) Push(payload []byte) {
	select {
	case c.Send <- payload:
	default:
		logger.Warnf("[client] send queue full, drop conn=%s user=%s", c.ConnID, c.UserID)
	}
}

// WritePump drains Send onto the socket. Run as the connection's single
// writer goroutine; returns when Close is called or a write fails.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.Send:
			if err := c.writeText(payload, 5*time.Second); err != nil {
				logger.Warnf("[client] write conn=%s err: %v", c.ConnID, err)
				return
			}
		}
	}
}

func (c *Client) writeText(data []byte, deadline time.Duration) error {
	if err := c.WS.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
		return err
	}
	return c.WS.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the writer down and closes the socket (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.WS != nil {
			_ = c.WS.Close()
		}
	})
}
