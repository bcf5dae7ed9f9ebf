package socks5

import "io"

// ProtocolVersion is the SOCKS version byte carried by every top-level
// frame except the password sub-negotiation, which uses SubnegotiationVersion.
const ProtocolVersion byte = 0x05

// SubnegotiationVersion is the version byte of the username/password
// sub-negotiation defined in RFC 1929.
const SubnegotiationVersion byte = 0x01

// MethodRequest is the client's initial greeting:
//
//	+-----+----------+----------+
//	| VER | NMETHODS | METHODS  |
//	+-----+----------+----------+
//	|  1  |    1     | 1 to 255 |
//	+-----+----------+----------+
//
// An NMETHODS of zero is accepted and decodes to an empty Methods slice
// rather than blocking on a read of zero bytes.
type MethodRequest struct {
	Methods []Method
}

func (m MethodRequest) SerializedLen() int { return 2 + len(m.Methods) }

func (m MethodRequest) Encode(w io.Writer) error {
	buf := make([]byte, 2+len(m.Methods))
	buf[0] = ProtocolVersion
	buf[1] = byte(len(m.Methods))
	for i, meth := range m.Methods {
		buf[2+i] = byte(meth)
	}
	_, err := w.Write(buf)
	return err
}

// DecodeMethodRequest reads a MethodRequest. The method list is read as raw
// bytes and mapped explicitly into []Method - no unsafe reinterpretation of
// the buffer, since Method is a defined byte type and the cost of the copy
// is a single linear pass over at most 255 bytes.
func DecodeMethodRequest(r io.Reader) (MethodRequest, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return MethodRequest{}, err
	}
	if hdr[0] != ProtocolVersion {
		return MethodRequest{}, &VersionError{Version: hdr[0]}
	}

	n := int(hdr[1])
	if n == 0 {
		return MethodRequest{Methods: nil}, nil
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return MethodRequest{}, err
	}

	methods := make([]Method, n)
	for i, b := range raw {
		methods[i] = Method(b)
	}
	return MethodRequest{Methods: methods}, nil
}

// MethodResponse is the server's method-selection reply:
//
//	+-----+--------+
//	| VER | METHOD |
//	+-----+--------+
//	|  1  |   1    |
//	+-----+--------+
type MethodResponse struct {
	Method Method
}

func (MethodResponse) SerializedLen() int { return 2 }

func (m MethodResponse) Encode(w io.Writer) error {
	_, err := w.Write([]byte{ProtocolVersion, byte(m.Method)})
	return err
}

// DecodeMethodResponse reads a MethodResponse. Per the spec's resolution of
// the corresponding open question, the version byte read here is never
// validated against 0x05 - only written as 0x05.
func DecodeMethodResponse(r io.Reader) (MethodResponse, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return MethodResponse{}, err
	}
	return MethodResponse{Method: Method(buf[1])}, nil
}

// Request is the client's command request:
//
//	+-----+-----+-------+------+----------+----------+
//	| VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+-----+-----+-------+------+----------+----------+
//	|  1  |  1  | X'00' |  1   | Variable |    2     |
//	+-----+-----+-------+------+----------+----------+
type Request struct {
	Command Command
	Address Address
}

func (r Request) SerializedLen() int { return 3 + r.Address.SerializedLen() }

func (r Request) Encode(w io.Writer) error {
	hdr := [3]byte{ProtocolVersion, byte(r.Command), 0x00}
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return r.Address.Encode(w)
}

// DecodeRequest reads a Request frame. The reserved byte (index 2 of the
// header) is read and discarded without validation, for interop with
// non-conforming clients that send a nonzero RSV. The command byte is
// validated only after the address has been fully decoded, so a client
// sending an invalid CMD alongside a malformed address still surfaces the
// address error first, even though CMD precedes the address on the wire.
func DecodeRequest(r io.Reader) (Request, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Request{}, err
	}
	if hdr[0] != ProtocolVersion {
		return Request{}, &VersionError{Version: hdr[0]}
	}

	addr, err := DecodeAddress(r)
	if err != nil {
		var ate *InvalidAddressTypeError
		if asAddressTypeError(err, &ate) {
			return Request{}, &InvalidAddressTypeInRequestError{
				Version:     hdr[0],
				Command:     Command(hdr[1]),
				AddressType: ate.Type,
			}
		}
		return Request{}, err
	}

	cmd := Command(hdr[1])
	if !cmd.valid() {
		return Request{}, &InvalidCommandError{Version: hdr[0], CommandByte: hdr[1]}
	}

	return Request{Command: cmd, Address: addr}, nil
}

// Response is the server's reply to a Request:
//
//	+-----+-----+-------+------+----------+----------+
//	| VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+-----+-----+-------+------+----------+----------+
//	|  1  |  1  | X'00' |  1   | Variable |    2     |
//	+-----+-----+-------+------+----------+----------+
type Response struct {
	Reply   Reply
	Address Address
}

func (r Response) SerializedLen() int { return 3 + r.Address.SerializedLen() }

func (r Response) Encode(w io.Writer) error {
	hdr := [3]byte{ProtocolVersion, byte(r.Reply), 0x00}
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return r.Address.Encode(w)
}

// DecodeResponse reads a Response frame, as a client-side collaborator of
// this server-focused package might when talking to an upstream SOCKS5
// proxy. The reserved byte is discarded without validation, mirroring
// DecodeRequest.
func DecodeResponse(r io.Reader) (Response, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Response{}, err
	}
	if hdr[0] != ProtocolVersion {
		return Response{}, &VersionError{Version: hdr[0]}
	}

	addr, err := DecodeAddress(r)
	if err != nil {
		var ate *InvalidAddressTypeError
		if asAddressTypeError(err, &ate) {
			return Response{}, &InvalidAddressTypeInResponseError{
				Version:     hdr[0],
				Reply:       Reply(hdr[1]),
				AddressType: ate.Type,
			}
		}
		return Response{}, err
	}

	rep := Reply(hdr[1])
	if !rep.valid() {
		return Response{}, &InvalidReplyError{Version: hdr[0], ReplyByte: hdr[1]}
	}

	return Response{Reply: rep, Address: addr}, nil
}

// UDPHeader is prepended to every datagram relayed through a UDP
// ASSOCIATE'd socket:
//
//	+-----+------+------+----------+----------+
//	| RSV | FRAG | ATYP | DST.ADDR | DST.PORT |
//	+-----+------+------+----------+----------+
//	|  2  |  1   |  1   | Variable |    2     |
//	+-----+------+------+----------+----------+
//
// FRAG is surfaced verbatim and never interpreted: fragment reassembly is
// out of scope for this library.
type UDPHeader struct {
	Frag    byte
	Address Address
}

func (h UDPHeader) SerializedLen() int { return 3 + h.Address.SerializedLen() }

func (h UDPHeader) Encode(w io.Writer) error {
	hdr := [3]byte{0x00, 0x00, h.Frag}
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return h.Address.Encode(w)
}

// DecodeUDPHeader reads a UDPHeader from the front of a datagram payload.
// An invalid ATYP byte is reported as InvalidAddressTypeInUDPHeaderError,
// carrying the FRAG byte already read so the caller can log it.
func DecodeUDPHeader(r io.Reader) (UDPHeader, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return UDPHeader{}, err
	}
	frag := hdr[2]

	addr, err := DecodeAddress(r)
	if err != nil {
		var ate *InvalidAddressTypeError
		if asAddressTypeError(err, &ate) {
			return UDPHeader{}, &InvalidAddressTypeInUDPHeaderError{Frag: frag, AddressType: ate.Type}
		}
		return UDPHeader{}, err
	}

	return UDPHeader{Frag: frag, Address: addr}, nil
}

// PasswordRequest is the client's username/password sub-negotiation
// request, per RFC 1929:
//
//	+-----+------+----------+------+----------+
//	| VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+-----+------+----------+------+----------+
//	|  1  |  1   | 1 to 255 |  1   | 1 to 255 |
//	+-----+------+----------+------+----------+
//
// Zero-length username or password, while outside the RFC's stated 1..255
// range, is accepted on decode for interop with lenient clients.
type PasswordRequest struct {
	Username []byte
	Password []byte
}

func (p PasswordRequest) SerializedLen() int { return 3 + len(p.Username) + len(p.Password) }

func (p PasswordRequest) Encode(w io.Writer) error {
	buf := make([]byte, 0, p.SerializedLen())
	buf = append(buf, SubnegotiationVersion, byte(len(p.Username)))
	buf = append(buf, p.Username...)
	buf = append(buf, byte(len(p.Password)))
	buf = append(buf, p.Password...)
	_, err := w.Write(buf)
	return err
}

// SubNegotiationVersionError reports a password sub-negotiation frame whose
// leading byte was not SubnegotiationVersion (0x01).
type SubNegotiationVersionError struct {
	Version byte
}

func (e *SubNegotiationVersionError) Error() string {
	return ErrSubNegotiationVersion(e.Version)
}
func (*SubNegotiationVersionError) protocolError() {}

// ErrSubNegotiationVersion formats the message shared by decode failures
// that reject an unexpected sub-negotiation version byte.
func ErrSubNegotiationVersion(version byte) string {
	return "socks5: unsupported sub-negotiation version 0x" + hexByte(version)
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}

// DecodePasswordRequest reads a PasswordRequest.
func DecodePasswordRequest(r io.Reader) (PasswordRequest, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return PasswordRequest{}, err
	}
	if hdr[0] != SubnegotiationVersion {
		return PasswordRequest{}, &SubNegotiationVersionError{Version: hdr[0]}
	}

	uname := make([]byte, hdr[1])
	if len(uname) > 0 {
		if _, err := io.ReadFull(r, uname); err != nil {
			return PasswordRequest{}, err
		}
	}

	var plen [1]byte
	if _, err := io.ReadFull(r, plen[:]); err != nil {
		return PasswordRequest{}, err
	}

	passwd := make([]byte, plen[0])
	if len(passwd) > 0 {
		if _, err := io.ReadFull(r, passwd); err != nil {
			return PasswordRequest{}, err
		}
	}

	return PasswordRequest{Username: uname, Password: passwd}, nil
}

// PasswordResponse is the server's username/password sub-negotiation
// response:
//
//	+-----+--------+
//	| VER | STATUS |
//	+-----+--------+
//	|  1  |   1    |
//	+-----+--------+
//
// STATUS 0x00 means success, anything else means failure. Encode always
// emits 0x00 or 0xFF; Decode is liberal and treats any non-zero byte as
// failure, per the spec's resolution of the corresponding open question.
type PasswordResponse struct {
	Success bool
}

const (
	passwordStatusSuccess = 0x00
	passwordStatusFailure = 0xFF
)

func (PasswordResponse) SerializedLen() int { return 2 }

func (p PasswordResponse) Encode(w io.Writer) error {
	status := byte(passwordStatusFailure)
	if p.Success {
		status = passwordStatusSuccess
	}
	_, err := w.Write([]byte{SubnegotiationVersion, status})
	return err
}

// DecodePasswordResponse reads a PasswordResponse.
func DecodePasswordResponse(r io.Reader) (PasswordResponse, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return PasswordResponse{}, err
	}
	if buf[0] != SubnegotiationVersion {
		return PasswordResponse{}, &SubNegotiationVersionError{Version: buf[0]}
	}
	return PasswordResponse{Success: buf[1] == passwordStatusSuccess}, nil
}

// asAddressTypeError is a small errors.As shim kept local to this file so
// DecodeRequest/DecodeResponse/DecodeUDPHeader can re-tag an address-level
// decode failure with their own frame-specific context.
func asAddressTypeError(err error, target **InvalidAddressTypeError) bool {
	ate, ok := err.(*InvalidAddressTypeError)
	if !ok {
		return false
	}
	*target = ate
	return true
}
