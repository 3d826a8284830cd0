package faye

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

// WebSocket keeps one socket open for the life of the handle and exchanges
// messages over it.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
}

// NewWebSocket creates a transport that dials the given ws:// or wss:// URL.
func NewWebSocket(url string) *WebSocket {
	return &WebSocket{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (w *WebSocket) ConnectionType() string { return ConnWebSocket }

// Open dials the broker.
func (w *WebSocket) Open(ctx context.Context) (Conn, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, w.url, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

// Exchange writes one text frame and reads one back. The read deadline comes
// from ctx; after a timeout the socket is unusable and the caller must reopen.
func (c *wsConn) Exchange(ctx context.Context, out []Message) ([]Message, error) {
	data, err := encodeMessages(out)
	if err != nil {
		return nil, err
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("%w: write: %v", ErrTransport, err)
	}

	var readDeadline time.Time
	if d, ok := ctx.Deadline(); ok {
		readDeadline = d
	}
	c.conn.SetReadDeadline(readDeadline)

	mt, reply, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	if mt != websocket.TextMessage {
		return nil, fmt.Errorf("%w: unexpected frame type %d", ErrTransport, mt)
	}
	return decodeMessages(reply)
}

// Close sends a close frame and releases the socket. Safe to call twice.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
