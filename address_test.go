package socks5

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		addr Address
	}{
		{"ipv4", NewIPAddress(net.ParseIP("192.0.2.1"), 80)},
		{"ipv6", NewIPAddress(net.ParseIP("2001:db8::1"), 443)},
		{"domain", NewDomainAddress([]byte("example.com"), 8080)},
		{"unspecified", UnspecifiedIPv4()},
		{"max-domain", NewDomainAddress(bytes.Repeat([]byte("a"), 255), 1)},
		{"single-byte-domain", NewDomainAddress([]byte("x"), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.addr.Encode(&buf); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if buf.Len() != tt.addr.SerializedLen() {
				t.Errorf("SerializedLen() = %d, wrote %d bytes", tt.addr.SerializedLen(), buf.Len())
			}

			got, err := DecodeAddress(&buf)
			if err != nil {
				t.Fatalf("DecodeAddress: %v", err)
			}

			if got.Type != tt.addr.Type || got.Port != tt.addr.Port {
				t.Fatalf("got %+v, want %+v", got, tt.addr)
			}
			switch tt.addr.Type {
			case AddressIPv4, AddressIPv6:
				if !got.IP.Equal(tt.addr.IP) {
					t.Errorf("IP = %v, want %v", got.IP, tt.addr.IP)
				}
			case AddressDomain:
				if !bytes.Equal(got.Domain, tt.addr.Domain) {
					t.Errorf("Domain = %q, want %q", got.Domain, tt.addr.Domain)
				}
			}
		})
	}
}

func TestAddressSerializedLenMatchesEncodedLength(t *testing.T) {
	addrs := []Address{
		NewIPAddress(net.ParseIP("10.0.0.1"), 1),
		NewIPAddress(net.ParseIP("::1"), 2),
		NewDomainAddress([]byte("host"), 3),
	}
	for _, a := range addrs {
		var buf bytes.Buffer
		if err := a.Encode(&buf); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if got, want := buf.Len(), a.SerializedLen(); got != want {
			t.Errorf("%v: encoded %d bytes, SerializedLen() = %d", a.Type, got, want)
		}
	}
}

func TestDecodeAddressInvalidType(t *testing.T) {
	buf := bytes.NewReader([]byte{0x05, 0x00, 0x00})
	_, err := DecodeAddress(buf)

	var ate *InvalidAddressTypeError
	if !errors.As(err, &ate) {
		t.Fatalf("expected *InvalidAddressTypeError, got %v (%T)", err, err)
	}
	if ate.Type != 0x05 {
		t.Errorf("Type = 0x%02x, want 0x05", ate.Type)
	}
}

func TestDecodeAddressShortRead(t *testing.T) {
	buf := bytes.NewReader([]byte{0x01, 0x01, 0x02, 0x03})
	_, err := DecodeAddress(buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		t.Fatalf("expected a short-read error, got %v", err)
	}
}

func TestDomainLabelLossyString(t *testing.T) {
	a := NewDomainAddress([]byte{0xFF, 0xFE}, 80)
	got := a.String()
	want := "��:80"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestEncodeDomainLabelOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	a := NewDomainAddress(nil, 1)
	if err := a.Encode(&buf); err == nil {
		t.Fatal("expected error encoding empty domain label")
	}

	a = NewDomainAddress(bytes.Repeat([]byte("a"), 256), 1)
	buf.Reset()
	if err := a.Encode(&buf); err == nil {
		t.Fatal("expected error encoding over-length domain label")
	}
}
