package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serialises writes; gorilla connections allow one concurrent writer.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

// Wrap adapts an upgraded connection.
func Wrap(conn *websocket.Conn) *Conn {
	return &Conn{Conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadFrame reads one frame with a read deadline.
func (c *Conn) ReadFrame() ([]byte, error) {
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.Conn.ReadMessage()
	return data, err
}
