package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// DefaultPongWait is how long the peer may stay silent, pongs included, before
// a read fails.
const DefaultPongWait = 60 * time.Second

// Conn serializes writes to a gorilla connection. Session hooks write from
// their own goroutines while the read loop answers actions, and gorilla allows
// only one concurrent writer.
type Conn struct {
	ws       *websocket.Conn
	mu       sync.Mutex
	pongWait time.Duration
}

// NewConn wraps an upgraded connection. Every message and every pong from the
// peer extends the read deadline by pongWait; zero means DefaultPongWait.
func NewConn(ws *websocket.Conn, pongWait time.Duration) *Conn {
	if pongWait <= 0 {
		pongWait = DefaultPongWait
	}
	c := &Conn{ws: ws, pongWait: pongWait}
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	return c
}

// KeepAlive pings the peer until done is closed or a ping cannot be sent. A
// peer that stops answering makes the next read fail once pongWait elapses.
func (c *Conn) KeepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(c.pongWait / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Error: errMsg})
}

// WriteEvent sends an event without payload.
func (c *Conn) WriteEvent(event Event) error {
	return c.WriteTyped(EventResponse{Event: event})
}

// ReadJSON reads and decodes the next message. A received message extends the
// read deadline like a pong does.
func (c *Conn) ReadJSON(v any) error {
	if err := c.ws.ReadJSON(v); err != nil {
		return err
	}
	return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
