package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second
	// pongWait closes connections that stay silent for a full minute.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so the pong arrives in time.
	pingPeriod = 54 * time.Second
	// maxMessageSize caps inbound command frames. Commands are tiny; a
	// larger frame is a misbehaving client.
	maxMessageSize = 4096
	// sendBuffer is the per-connection outbound queue. A client that falls
	// this far behind is dropped rather than allowed to stall broadcasts.
	sendBuffer = 256
)

// Client is one websocket connection. It knows nothing about the user behind
// it; identity lives in the Registry and is bound at authenticate time.
//
// All outbound traffic goes through the send channel so the writePump is the
// only goroutine writing to the socket.
type Client struct {
	coord  *Coordinator
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(coord *Coordinator, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		coord:  coord,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
	}
}

// enqueue queues msg for delivery. When the buffer is full the client is too
// slow to keep up and the connection is closed instead of blocking the
// caller.
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("client send buffer full, dropping connection")
		c.closed = true
		close(c.send)
	}
}

// close shuts the send channel exactly once, which makes the writePump send
// a close frame and tear the connection down.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump consumes command frames and hands them to the coordinator loop.
// It owns the disconnect path: whatever kills the read (client close,
// network error, oversized frame) ends with the coordinator cleaning up.
func (c *Client) readPump() {
	defer func() {
		c.coord.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.coord.sendError(c, "malformed message")
			continue
		}
		c.coord.dispatch(c, env)
	}
}

// writePump is the sole writer on the socket: queued events plus the
// keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

			// Drain whatever else is queued while we hold the socket.
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.send
				if !ok {
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
