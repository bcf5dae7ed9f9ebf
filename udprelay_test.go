package socks5

import (
	"bytes"
	"net"
	"testing"
)

func newUDPPair(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	a, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP a: %v", err)
	}
	b, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP b: %v", err)
	}
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestRelaySendRecvRoundTrip(t *testing.T) {
	a, b := newUDPPair(t)
	relay := NewRelay(a)

	dest := NewIPAddress(net.ParseIP("8.8.8.8"), 53)
	payload := []byte("hello relay")
	n, err := relay.Send(b.LocalAddr(), dest, payload)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != len(payload) {
		t.Errorf("Send returned n=%d, want %d", n, len(payload))
	}

	recvRelay := NewRelay(b)
	dg, from, raw, err := recvRelay.Recv()
	if err != nil {
		t.Fatalf("Recv: %v (raw=% x)", err, raw)
	}
	if from == nil {
		t.Fatal("Recv did not report a sender address")
	}
	if dg.Header.Address.Port != 53 || !dg.Header.Address.IP.Equal(net.ParseIP("8.8.8.8")) {
		t.Errorf("header address = %v", dg.Header.Address)
	}
	if !bytes.Equal(dg.Payload, payload) {
		t.Errorf("Payload = %q, want %q", dg.Payload, payload)
	}
}

func TestRelayRecvSurfacesFragVerbatim(t *testing.T) {
	a, b := newUDPPair(t)
	relay := NewRelay(b)

	header := UDPHeader{Frag: 1, Address: UnspecifiedIPv4()}
	payload := []byte("fragment one")
	var buf bytes.Buffer
	if err := header.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf.Write(payload)
	if _, err := a.WriteTo(buf.Bytes(), b.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	dg, _, raw, err := relay.Recv()
	if err != nil {
		t.Fatalf("Recv: %v (raw=% x)", err, raw)
	}
	if dg.Header.Frag != 1 {
		t.Errorf("Header.Frag = %d, want 1 - FRAG must be surfaced, not interpreted", dg.Header.Frag)
	}
	if !bytes.Equal(dg.Payload, payload) {
		t.Errorf("Payload = %q, want %q", dg.Payload, payload)
	}
}

func TestRelayRecvSurfacesRawBytesOnParseFailure(t *testing.T) {
	a, b := newUDPPair(t)
	relay := NewRelay(b)

	garbage := []byte{0x00, 0x00, 0x00, 0x09, 0x01, 0x02}
	if _, err := a.WriteTo(garbage, b.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	_, _, raw, err := relay.Recv()
	if err == nil {
		t.Fatal("expected a header decode error")
	}
	if !bytes.Equal(raw, garbage) {
		t.Errorf("raw = % x, want % x", raw, garbage)
	}
}

func TestRelaySetMaxPacketSize(t *testing.T) {
	_, b := newUDPPair(t)
	relay := NewRelay(b)
	relay.SetMaxPacketSize(16)
	if got := relay.maxPacket.Load(); got != 16 {
		t.Errorf("maxPacket = %d, want 16", got)
	}
}
