package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	socks5 "github.com/sagansky/socks5"
)

// ALPNProtocol is advertised by both sides of a QUIC handshake so the
// listener only accepts connections intended for SOCKS5-over-QUIC.
const ALPNProtocol = "socks5"

const (
	defaultMaxIdleTimeout  = 60 * time.Second
	defaultKeepAlivePeriod = 30 * time.Second
)

// QUICListener accepts SOCKS5 control connections carried as QUIC streams,
// one stream per SOCKS5 client.
type QUICListener struct {
	listener *quic.Listener
}

// ListenQUIC binds a QUIC listener on addr. tlsConfig must be non-nil;
// its NextProtos is overwritten to just ALPNProtocol.
func ListenQUIC(addr string, tlsConfig *tls.Config) (*QUICListener, error) {
	if tlsConfig == nil {
		return nil, fmt.Errorf("tls config required for QUIC listener")
	}
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{ALPNProtocol}

	ln, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  defaultMaxIdleTimeout,
		KeepAlivePeriod: defaultKeepAlivePeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("quic listen: %w", err)
	}
	return &QUICListener{listener: ln}, nil
}

// Accept waits for the next QUIC connection and its first stream, which
// carries one SOCKS5 negotiation.
func (l *QUICListener) Accept(ctx context.Context) (socks5.Transport, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream accept failed")
		return nil, err
	}
	return &quicTransport{conn: conn, stream: stream}, nil
}

// Addr returns the listener's local address.
func (l *QUICListener) Addr() net.Addr { return l.listener.Addr() }

// Close stops the listener.
func (l *QUICListener) Close() error { return l.listener.Close() }

// DialQUIC opens a QUIC connection to addr and its first stream, wrapped
// as a socks5.Transport a client can drive a negotiation over.
func DialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config) (socks5.Transport, error) {
	tlsConfig = tlsConfig.Clone()
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{ALPNProtocol}
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  defaultMaxIdleTimeout,
		KeepAlivePeriod: defaultKeepAlivePeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("quic dial: %w", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("quic open stream: %w", err)
	}
	return &quicTransport{conn: conn, stream: stream}, nil
}

// quicTransport adapts one QUIC stream (plus its parent connection, for
// addressing and final teardown) to socks5.Transport.
type quicTransport struct {
	conn   quic.Connection
	stream quic.Stream
}

func (t *quicTransport) Read(p []byte) (int, error)  { return t.stream.Read(p) }
func (t *quicTransport) Write(p []byte) (int, error) { return t.stream.Write(p) }

func (t *quicTransport) Close() error {
	t.stream.CancelRead(0)
	if err := t.stream.Close(); err != nil {
		return err
	}
	return t.conn.CloseWithError(0, "")
}

func (t *quicTransport) LocalAddr() net.Addr  { return t.conn.LocalAddr() }
func (t *quicTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

func (t *quicTransport) SetDeadline(d time.Time) error      { return t.stream.SetDeadline(d) }
func (t *quicTransport) SetReadDeadline(d time.Time) error  { return t.stream.SetReadDeadline(d) }
func (t *quicTransport) SetWriteDeadline(d time.Time) error { return t.stream.SetWriteDeadline(d) }
