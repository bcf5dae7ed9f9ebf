package socks5

import (
	"errors"
	"net"
	"sync/atomic"
)

// defaultMaxPacketSize is large enough for the largest UDP datagram a
// standard socket can receive without truncation.
const defaultMaxPacketSize = 65535

// Relay is the UDP ASSOCIATE datagram framer (component C6). It wraps a
// PacketTransport - normally a *net.UDPConn bound by the host once a
// client's ASSOCIATE request is accepted - and handles only the SOCKS5
// header framing; address verification, NAT-rebinding, and the control
// connection's lifetime are the host's concern, tracked via
// AssociateReady.WaitUntilClosed. FRAG is surfaced verbatim on Header and
// never interpreted - fragment reassembly is the caller's concern, if it
// has one at all.
type Relay struct {
	conn      PacketTransport
	maxPacket atomic.Int32
}

// NewRelay wraps conn as a Relay. The maximum accepted UDP datagram size
// defaults to 65535 bytes.
func NewRelay(conn PacketTransport) *Relay {
	r := &Relay{conn: conn}
	r.maxPacket.Store(defaultMaxPacketSize)
	return r
}

// SetMaxPacketSize bounds the buffer Recv allocates per call. It is safe to
// call concurrently with Recv/Send.
func (r *Relay) SetMaxPacketSize(n int) {
	r.maxPacket.Store(int32(n))
}

// Close closes the underlying PacketTransport.
func (r *Relay) Close() error { return r.conn.Close() }

// LocalAddr returns the relay socket's local address, the value a host
// reports back to the client in the ASSOCIATE Response's bound address.
func (r *Relay) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Datagram is one decoded UDP ASSOCIATE datagram: the SOCKS5 header plus
// the payload that followed it.
type Datagram struct {
	Header  UDPHeader
	Payload []byte
}

// Recv reads one datagram and decodes its SOCKS5 header. From reports the
// address the datagram actually arrived from, for callers that verify it
// against the client address named in the original ASSOCIATE request.
// Header.Frag is returned exactly as the client sent it; Recv never
// inspects or rejects it. If the datagram's header fails to parse - too
// short or an unrecognized ATYP - Recv returns the zero Datagram, the
// sender address, raw holding the bytes received so the caller can log
// them, and a non-nil err; the datagram is otherwise consumed and the relay
// keeps running.
func (r *Relay) Recv() (dg Datagram, from net.Addr, raw []byte, err error) {
	buf := make([]byte, r.maxPacket.Load())
	n, from, err := r.conn.ReadFrom(buf)
	if err != nil {
		return Datagram{}, from, nil, err
	}
	raw = buf[:n]

	br := &byteReader{b: raw}
	header, err := DecodeUDPHeader(br)
	if err != nil {
		return Datagram{}, from, raw, err
	}

	payload := raw[header.SerializedLen():]
	return Datagram{Header: header, Payload: payload}, from, raw, nil
}

// Send frames payload behind a SOCKS5 UDP header addressed to dest and
// writes the result to to in a single WriteTo call. It returns the number
// of payload bytes written, not counting the header.
func (r *Relay) Send(to net.Addr, dest Address, payload []byte) (int, error) {
	header := UDPHeader{Address: dest}
	buf := make([]byte, 0, header.SerializedLen()+len(payload))
	w := &byteWriter{buf: buf}
	if err := header.Encode(w); err != nil {
		return 0, err
	}
	headerLen := len(w.buf)
	w.buf = append(w.buf, payload...)

	n, err := r.conn.WriteTo(w.buf, to)
	if err != nil {
		if n > headerLen {
			return n - headerLen, err
		}
		return 0, err
	}
	return n - headerLen, nil
}

// byteReader adapts a byte slice to io.Reader for DecodeUDPHeader without
// pulling in bytes.Reader just for this one call site. Unlike bytes.Reader
// it reports a short buffer as an error rather than io.EOF, since
// io.ReadFull treats a zero-byte read as EOF but DecodeUDPHeader always
// requests a fixed, nonzero number of bytes per call.
type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, errShortDatagram
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	if n < len(p) {
		return n, errShortDatagram
	}
	return n, nil
}

var errShortDatagram = errors.New("socks5: datagram shorter than UDP header")

// byteWriter adapts a growable byte slice to io.Writer for Encode without
// pulling in bytes.Buffer just for this one call site.
type byteWriter struct{ buf []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
