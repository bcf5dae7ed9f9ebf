package socks5

import (
	"net"
	"time"
)

// Transport is the byte-stream collaborator a negotiation drives: the
// control connection a client opened to a SOCKS5 listener. It is
// deliberately narrower than net.Conn - just enough for the handshake and
// for a caller to later splice application data over it - so that
// alternative carriers (a WebSocket connection, a QUIC stream) can satisfy
// it without dragging in unrelated net.Conn methods.
type Transport interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// PacketTransport is the datagram collaborator a UDP ASSOCIATE relay runs
// over. It matches net.PacketConn, named separately so Relay's dependency
// is stated in terms of this package's own vocabulary rather than net's.
type PacketTransport interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
	LocalAddr() net.Addr
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dialer is the outbound-connection collaborator a CONNECT/BIND handler
// supplies. It is satisfied by net.Dialer and by test doubles alike.
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// netDialer adapts *net.Dialer (and any DialContext-less dialer) to Dialer.
type netDialer struct {
	dialer *net.Dialer
}

// NewNetDialer wraps a *net.Dialer as a Dialer. Passing nil uses a
// zero-value net.Dialer.
func NewNetDialer(d *net.Dialer) Dialer {
	if d == nil {
		d = &net.Dialer{}
	}
	return netDialer{dialer: d}
}

func (d netDialer) Dial(network, address string) (net.Conn, error) {
	return d.dialer.Dial(network, address)
}
