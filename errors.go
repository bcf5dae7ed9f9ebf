package socks5

import "fmt"

// ProtocolError is the common interface implemented by every structural
// decode failure defined below. Each variant carries the fields already
// successfully parsed before the offending byte was read, so a log line
// built from it can reconstruct what the peer actually sent.
type ProtocolError interface {
	error
	protocolError()
}

// VersionError reports a frame whose leading version byte was not 0x05.
// Decoders read the frame's fixed-size header (the version byte together
// with the one or two bytes after it) before checking the version, so those
// header bytes have already been consumed when this is returned; nothing of
// the variable-length body after the header is read.
type VersionError struct {
	Version byte
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("socks5: unsupported protocol version 0x%02x", e.Version)
}
func (*VersionError) protocolError() {}

// NoAcceptableMethodError reports that none of the methods a client offered
// in its MethodRequest matched the method the host's Authenticator
// advertises. An empty OfferedMethods means the client's MethodRequest
// carried zero methods, which this library treats the same way.
type NoAcceptableMethodError struct {
	Version        byte
	ChosenMethod   Method
	OfferedMethods []Method
}

func (e *NoAcceptableMethodError) Error() string {
	return fmt.Sprintf("socks5: no acceptable handshake method (host offers %s, client offered %v)", e.ChosenMethod, e.OfferedMethods)
}
func (*NoAcceptableMethodError) protocolError() {}

// InvalidCommandError reports a Request frame whose CMD byte was not one of
// CONNECT/BIND/ASSOCIATE.
type InvalidCommandError struct {
	Version     byte
	CommandByte byte
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("socks5: invalid command byte 0x%02x", e.CommandByte)
}
func (*InvalidCommandError) protocolError() {}

// InvalidReplyError reports a Response frame whose REP byte was outside
// 0x00..0x08.
type InvalidReplyError struct {
	Version   byte
	ReplyByte byte
}

func (e *InvalidReplyError) Error() string {
	return fmt.Sprintf("socks5: invalid reply byte 0x%02x", e.ReplyByte)
}
func (*InvalidReplyError) protocolError() {}

// InvalidAddressTypeInRequestError reports a Request frame whose ADDR began
// with an ATYP byte outside {0x01, 0x03, 0x04}.
type InvalidAddressTypeInRequestError struct {
	Version     byte
	Command     Command
	AddressType byte
}

func (e *InvalidAddressTypeInRequestError) Error() string {
	return fmt.Sprintf("socks5: invalid address type 0x%02x in %s request", e.AddressType, e.Command)
}
func (*InvalidAddressTypeInRequestError) protocolError() {}

// InvalidAddressTypeInResponseError reports a Response frame with an
// unrecognized ATYP byte.
type InvalidAddressTypeInResponseError struct {
	Version     byte
	Reply       Reply
	AddressType byte
}

func (e *InvalidAddressTypeInResponseError) Error() string {
	return fmt.Sprintf("socks5: invalid address type 0x%02x in %s response", e.AddressType, e.Reply)
}
func (*InvalidAddressTypeInResponseError) protocolError() {}

// InvalidAddressTypeInUDPHeaderError reports a UDP relay datagram whose
// header carried an unrecognized ATYP byte.
type InvalidAddressTypeInUDPHeaderError struct {
	Frag        byte
	AddressType byte
}

func (e *InvalidAddressTypeInUDPHeaderError) Error() string {
	return fmt.Sprintf("socks5: invalid address type 0x%02x in UDP header (frag=%d)", e.AddressType, e.Frag)
}
func (*InvalidAddressTypeInUDPHeaderError) protocolError() {}

// IOError wraps a transport-level error to distinguish it from the
// ProtocolError variants above. Decode/encode functions in this package
// return raw io errors unwrapped; IOError exists for callers that want to
// tag an error as "definitely transport, not protocol" after the fact, e.g.
// when plumbing errors from NegotiationError.Err through a single error
// channel.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// ToIOError lossily converts any error - protocol or transport - into a
// plain error suitable for callers that only want to plumb one error type
// through their stack and don't care to distinguish the two. Protocol
// errors keep their formatted message; the structured fields are lost.
func ToIOError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(ProtocolError); ok {
		return fmt.Errorf("socks5 protocol error: %w", err)
	}
	return err
}
