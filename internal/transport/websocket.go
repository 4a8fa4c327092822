package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// defaultReadLimit caps inbound frame size. Browser recorders emit fragments
// of a few KiB per timeslice; 1 MiB leaves generous headroom without letting
// one client exhaust memory.
const defaultReadLimit = 1 << 20

// WSOption is a functional option for configuring a WebSocketConn.
type WSOption func(*WebSocketConn)

// WithReadLimit overrides the maximum inbound frame size in bytes.
func WithReadLimit(n int64) WSOption {
	return func(c *WebSocketConn) {
		c.readLimit = n
	}
}

// WebSocketConn implements Conn on top of a coder/websocket connection.
type WebSocketConn struct {
	conn      *websocket.Conn
	readLimit int64

	// writeMu serializes all writes; the session's pipeline goroutine and
	// the server may both send on teardown.
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an accepted WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn, opts ...WSOption) *WebSocketConn {
	c := &WebSocketConn{
		conn:      conn,
		readLimit: defaultReadLimit,
	}
	for _, o := range opts {
		o(c)
	}
	c.conn.SetReadLimit(c.readLimit)
	return c
}

// ReadFrame implements Conn.
func (c *WebSocketConn) ReadFrame(ctx context.Context) (Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: read frame: %w", err)
	}
	return Frame{
		Binary: typ == websocket.MessageBinary,
		Data:   data,
	}, nil
}

// SendText implements Conn.
func (c *WebSocketConn) SendText(ctx context.Context, kind Kind, text string) error {
	body, err := encodeEnvelope(kind, text)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, body); err != nil {
		return fmt.Errorf("transport: write %s frame: %w", kind, err)
	}
	return nil
}

// SendBinary implements Conn.
func (c *WebSocketConn) SendBinary(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("transport: write binary frame: %w", err)
	}
	return nil
}

// Close implements Conn. The first call sends a normal closure; later calls
// return the first result.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	return c.closeErr
}

// Ensure WebSocketConn implements Conn at compile time.
var _ Conn = (*WebSocketConn)(nil)
