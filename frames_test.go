package socks5

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestMethodRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		methods []Method
	}{
		{"empty", nil},
		{"single", []Method{MethodNoAuth}},
		{"multiple", []Method{MethodNoAuth, MethodGSSAPI, MethodPassword}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := MethodRequest{Methods: tt.methods}
			var buf bytes.Buffer
			if err := mr.Encode(&buf); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if buf.Len() != mr.SerializedLen() {
				t.Errorf("SerializedLen() = %d, wrote %d", mr.SerializedLen(), buf.Len())
			}
			got, err := DecodeMethodRequest(&buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got.Methods) != len(tt.methods) {
				t.Fatalf("got %v methods, want %v", got.Methods, tt.methods)
			}
			for i := range tt.methods {
				if got.Methods[i] != tt.methods[i] {
					t.Errorf("Methods[%d] = %v, want %v", i, got.Methods[i], tt.methods[i])
				}
			}
		})
	}
}

// TestMethodRequestWireBytes matches the literal-byte handshake scenario
// from the negotiation state machine: a client offering no-auth and
// password, 0x05 0x02 0x00 0x02.
func TestMethodRequestWireBytes(t *testing.T) {
	want := []byte{0x05, 0x02, 0x00, 0x02}
	mr := MethodRequest{Methods: []Method{MethodNoAuth, MethodPassword}}
	var buf bytes.Buffer
	if err := mr.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % x, want % x", buf.Bytes(), want)
	}
}

func TestDecodeMethodRequestVersionRejection(t *testing.T) {
	buf := bytes.NewReader([]byte{0x04, 0x00})
	_, err := DecodeMethodRequest(buf)
	var verr *VersionError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VersionError, got %v (%T)", err, err)
	}
	if verr.Version != 0x04 {
		t.Errorf("Version = 0x%02x, want 0x04", verr.Version)
	}
}

func TestMethodResponseRoundTrip(t *testing.T) {
	mresp := MethodResponse{Method: MethodPassword}
	var buf bytes.Buffer
	if err := mresp.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x05, 0x02}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % x, want % x", buf.Bytes(), want)
	}
	got, err := DecodeMethodResponse(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Method != MethodPassword {
		t.Errorf("Method = %v, want %v", got.Method, MethodPassword)
	}
}

func TestDecodeMethodResponseIgnoresVersionByte(t *testing.T) {
	buf := bytes.NewReader([]byte{0x99, 0x00})
	got, err := DecodeMethodResponse(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Method != MethodNoAuth {
		t.Errorf("Method = %v, want no-auth", got.Method)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		Command: CommandConnect,
		Address: NewIPAddress(net.ParseIP("93.184.216.34"), 80),
	}
	var buf bytes.Buffer
	if err := req.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != req.SerializedLen() {
		t.Errorf("SerializedLen() = %d, wrote %d", req.SerializedLen(), buf.Len())
	}
	got, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Command != req.Command {
		t.Errorf("Command = %v, want %v", got.Command, req.Command)
	}
	if !got.Address.IP.Equal(req.Address.IP) || got.Address.Port != req.Address.Port {
		t.Errorf("Address = %v, want %v", got.Address, req.Address)
	}
}

func TestDecodeRequestInvalidCommand(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x05, 0x07, 0x00})
	addr := NewIPAddress(net.ParseIP("1.2.3.4"), 1)
	addr.Encode(&buf)

	_, err := DecodeRequest(&buf)
	var cerr *InvalidCommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *InvalidCommandError, got %v (%T)", err, err)
	}
	if cerr.CommandByte != 0x07 {
		t.Errorf("CommandByte = 0x%02x, want 0x07", cerr.CommandByte)
	}
}

func TestDecodeRequestInvalidAddressType(t *testing.T) {
	buf := bytes.NewReader([]byte{0x05, 0x01, 0x00, 0x7f})
	_, err := DecodeRequest(buf)
	var atre *InvalidAddressTypeInRequestError
	if !errors.As(err, &atre) {
		t.Fatalf("expected *InvalidAddressTypeInRequestError, got %v (%T)", err, err)
	}
	if atre.AddressType != 0x7f || atre.Command != CommandConnect {
		t.Errorf("got %+v", atre)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := Response{
		Reply:   ReplySucceeded,
		Address: NewIPAddress(net.ParseIP("10.0.0.5"), 1080),
	}
	var buf bytes.Buffer
	if err := resp.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeResponse(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Reply != resp.Reply {
		t.Errorf("Reply = %v, want %v", got.Reply, resp.Reply)
	}
}

func TestDecodeResponseInvalidReply(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x05, 0x09, 0x00})
	UnspecifiedIPv4().Encode(&buf)

	_, err := DecodeResponse(&buf)
	var rerr *InvalidReplyError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *InvalidReplyError, got %v (%T)", err, err)
	}
	if rerr.ReplyByte != 0x09 {
		t.Errorf("ReplyByte = 0x%02x, want 0x09", rerr.ReplyByte)
	}
}

func TestUDPHeaderRoundTrip(t *testing.T) {
	h := UDPHeader{
		Frag:    0,
		Address: NewDomainAddress([]byte("relay.example"), 53),
	}
	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != h.SerializedLen() {
		t.Errorf("SerializedLen() = %d, wrote %d", h.SerializedLen(), buf.Len())
	}
	got, err := DecodeUDPHeader(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Frag != h.Frag || !bytes.Equal(got.Address.Domain, h.Address.Domain) {
		t.Errorf("got %+v, want %+v", got, h)
	}
}

func TestDecodeUDPHeaderInvalidAddressType(t *testing.T) {
	buf := bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x09})
	_, err := DecodeUDPHeader(buf)
	var atue *InvalidAddressTypeInUDPHeaderError
	if !errors.As(err, &atue) {
		t.Fatalf("expected *InvalidAddressTypeInUDPHeaderError, got %v (%T)", err, err)
	}
}

func TestPasswordRequestRoundTrip(t *testing.T) {
	p := PasswordRequest{Username: []byte("alice"), Password: []byte("hunter2")}
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != p.SerializedLen() {
		t.Errorf("SerializedLen() = %d, wrote %d", p.SerializedLen(), buf.Len())
	}
	got, err := DecodePasswordRequest(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got.Username, p.Username) || !bytes.Equal(got.Password, p.Password) {
		t.Errorf("got %+v, want %+v", got, p)
	}
}

func TestPasswordResponseRoundTrip(t *testing.T) {
	for _, success := range []bool{true, false} {
		p := PasswordResponse{Success: success}
		var buf bytes.Buffer
		if err := p.Encode(&buf); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := DecodePasswordResponse(&buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Success != success {
			t.Errorf("Success = %v, want %v", got.Success, success)
		}
	}
}

// TestDecodePasswordResponseLiberalStatus matches the spec's resolution of
// the sub-negotiation status open question: any nonzero status byte reads
// as failure, not just 0xFF.
func TestDecodePasswordResponseLiberalStatus(t *testing.T) {
	buf := bytes.NewReader([]byte{0x01, 0x42})
	got, err := DecodePasswordResponse(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Success {
		t.Error("Success = true, want false for a nonzero, non-0xFF status byte")
	}
}
