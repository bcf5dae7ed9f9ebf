// Package transport provides alternative socks5.Transport implementations
// for carrying the SOCKS5 wire protocol over something other than a raw
// TCP socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	socks5 "github.com/sagansky/socks5"
)

// WSSubprotocol is the WebSocket subprotocol a client must negotiate before
// the server will treat the connection as carrying SOCKS5 frames.
const WSSubprotocol = "socks5"

// AcceptWS upgrades an HTTP request to a WebSocket connection and wraps it
// as a socks5.Transport. The caller's http.HandlerFunc must block on the
// returned Transport for the connection's lifetime; returning early tears
// the WebSocket down.
func AcceptWS(w http.ResponseWriter, r *http.Request) (socks5.Transport, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{WSSubprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	if conn.Subprotocol() != WSSubprotocol {
		conn.Close(websocket.StatusProtocolError, "socks5 subprotocol required")
		return nil, fmt.Errorf("client did not negotiate %q subprotocol", WSSubprotocol)
	}
	return newWSTransport(conn), nil
}

// DialWS opens a WebSocket connection to a SOCKS5-over-WebSocket listener
// and wraps it as a socks5.Transport, for clients that need to reach a
// server behind HTTP(S) infrastructure that only forwards WebSocket
// traffic.
func DialWS(ctx context.Context, url string) (socks5.Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{WSSubprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return newWSTransport(conn), nil
}

// wsTransport adapts a *websocket.Conn to socks5.Transport. SOCKS5 frames
// are not message-delimited - a client's MethodRequest, a server's
// MethodResponse, and so on are just byte streams - so Read reassembles
// binary WebSocket messages into a continuous stream the way the mesh
// agent's wsConn already does for its own framed protocol.
type wsTransport struct {
	conn       *websocket.Conn
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu             sync.RWMutex
	deadlineCtx    context.Context
	deadlineCancel context.CancelFunc

	readMu sync.Mutex
	reader io.Reader
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsTransport{conn: conn, baseCtx: ctx, baseCancel: cancel}
}

func (t *wsTransport) activeCtx() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.deadlineCtx != nil {
		return t.deadlineCtx
	}
	return t.baseCtx
}

func (t *wsTransport) Read(p []byte) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.reader != nil {
		n, err := t.reader.Read(p)
		if err == io.EOF {
			t.reader = nil
			if n > 0 {
				return n, nil
			}
		} else {
			return n, err
		}
	}

	ctx := t.activeCtx()
	msgType, reader, err := t.conn.Reader(ctx)
	if err != nil {
		return 0, t.translateError(err)
	}
	if msgType != websocket.MessageBinary {
		return 0, fmt.Errorf("unexpected websocket message type: %v", msgType)
	}

	n, err := reader.Read(p)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, err
	}
	t.reader = reader
	return n, nil
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.Write(t.activeCtx(), websocket.MessageBinary, p); err != nil {
		return 0, t.translateError(err)
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.deadlineCancel != nil {
		t.deadlineCancel()
	}
	t.mu.Unlock()
	t.baseCancel()
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// LocalAddr and RemoteAddr have no meaning for a WebSocket stream once it's
// been handed off from net/http, so both return nil; callers that log
// addresses should fall back to the originating *http.Request instead.
func (t *wsTransport) LocalAddr() net.Addr  { return nil }
func (t *wsTransport) RemoteAddr() net.Addr { return nil }

func (t *wsTransport) SetDeadline(d time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deadlineCancel != nil {
		t.deadlineCancel()
		t.deadlineCancel = nil
		t.deadlineCtx = nil
	}
	if !d.IsZero() {
		t.deadlineCtx, t.deadlineCancel = context.WithDeadline(t.baseCtx, d)
	}
	return nil
}

func (t *wsTransport) SetReadDeadline(d time.Time) error  { return t.SetDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.SetDeadline(d) }

type wsTimeoutError struct{ err error }

func (e *wsTimeoutError) Error() string   { return e.err.Error() }
func (e *wsTimeoutError) Timeout() bool   { return true }
func (e *wsTimeoutError) Temporary() bool { return true }

func (t *wsTransport) translateError(err error) error {
	if websocket.CloseStatus(err) != -1 {
		return io.EOF
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &wsTimeoutError{err: err}
	}
	return err
}
