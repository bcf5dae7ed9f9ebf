package socks5

import (
	"context"
	"fmt"
	"net"
)

// NegotiationError is returned by every stage-transition method on failure.
// It surrenders the Transport back to the caller instead of closing it
// implicitly, since only the caller knows whether the connection is worth
// logging, retrying on, or inspecting before it is torn down.
type NegotiationError struct {
	Err       error
	Transport Transport
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("socks5: negotiation failed: %s", e.Err)
}
func (e *NegotiationError) Unwrap() error { return e.Err }

func negotiationError(t Transport, err error) *NegotiationError {
	return &NegotiationError{Err: err, Transport: t}
}

// base is embedded by every stage handle and carries the one thing they all
// share: the underlying Transport. It is not itself part of the public
// typestate - callers hold the named stage types below, never base.
type base struct {
	transport Transport
}

// LocalAddr returns the control connection's local address.
func (b base) LocalAddr() net.Addr { return b.transport.LocalAddr() }

// RemoteAddr returns the control connection's remote address.
func (b base) RemoteAddr() net.Addr { return b.transport.RemoteAddr() }

// Close closes the underlying Transport. Each stage exposes it so a caller
// holding any stage handle can abandon the negotiation without needing to
// unwrap to a particular type first.
func (b base) Close() error { return b.transport.Close() }

// Transport returns the underlying Transport, for callers that need to set
// deadlines or otherwise manage it directly mid-negotiation.
func (b base) Transport() Transport { return b.transport }

// Incoming is a freshly accepted control connection that has not yet sent
// its MethodRequest. It is the only stage constructible from outside this
// package.
type Incoming struct {
	base
}

// NewIncoming wraps an accepted Transport as the start of a negotiation.
func NewIncoming(t Transport) Incoming {
	return Incoming{base: base{transport: t}}
}

// Authenticate reads the client's MethodRequest, selects auth's method if
// offered, and runs auth's sub-negotiation. It does not interpret the
// identity auth returns to decide whether to proceed - a completed
// sub-negotiation always advances to Authenticated, even one that reports a
// rejected credential through its identity value. Authenticate only
// surrenders the Transport via a *NegotiationError when the negotiation
// itself could not complete: no method in common, or a frame that failed to
// read, parse, or write.
func (in Incoming) Authenticate(ctx context.Context, auth Authenticator) (Authenticated, error) {
	mreq, err := DecodeMethodRequest(in.transport)
	if err != nil {
		return Authenticated{}, negotiationError(in.transport, err)
	}

	chosen := auth.Method()
	offered := false
	for _, m := range mreq.Methods {
		if m == chosen {
			offered = true
			break
		}
	}

	if !offered {
		resp := MethodResponse{Method: MethodNoAcceptable}
		_ = resp.Encode(in.transport)
		return Authenticated{}, negotiationError(in.transport, &NoAcceptableMethodError{
			Version:        ProtocolVersion,
			ChosenMethod:   chosen,
			OfferedMethods: mreq.Methods,
		})
	}

	resp := MethodResponse{Method: chosen}
	if err := resp.Encode(in.transport); err != nil {
		return Authenticated{}, negotiationError(in.transport, err)
	}

	identity, err := auth.Authenticate(ctx, rwOf(in.transport))
	if err != nil {
		return Authenticated{}, negotiationError(in.transport, err)
	}

	return Authenticated{base: in.base, Identity: identity}, nil
}

// rwOf narrows a Transport to the io.ReadWriter shape Authenticator expects,
// without exposing deadline/address methods to sub-negotiation code that
// has no business calling them.
func rwOf(t Transport) ioReadWriter { return ioReadWriter{t} }

type ioReadWriter struct{ t Transport }

func (rw ioReadWriter) Read(p []byte) (int, error)  { return rw.t.Read(p) }
func (rw ioReadWriter) Write(p []byte) (int, error) { return rw.t.Write(p) }

// Authenticated is a control connection that has completed a sub-negotiation
// and is waiting for the client's command Request. Identity is whatever the
// Authenticator returned - nil for NoAuth, a PasswordIdentity for
// PasswordAuth - and the caller, not this package, decides whether it
// represents a connection worth continuing.
type Authenticated struct {
	base
	Identity any
}

// CommandResult is the sum of the three possible next stages after Wait
// reads a Request: exactly one field is non-nil, selected by Command.
type CommandResult struct {
	Command Command

	Connect   *ConnectNeedReply
	Bind      *BindNeedFirstReply
	Associate *AssociateNeedReply
}

// Wait reads the client's Request and dispatches into the matching
// command-specific stage. The Address in the Request is preserved on the
// returned stage so the caller can dial or bind it.
func (a Authenticated) Wait(ctx context.Context) (CommandResult, error) {
	req, err := DecodeRequest(a.transport)
	if err != nil {
		return CommandResult{}, negotiationError(a.transport, err)
	}

	switch req.Command {
	case CommandConnect:
		return CommandResult{
			Command: req.Command,
			Connect: &ConnectNeedReply{base: a.base, Address: req.Address},
		}, nil
	case CommandBind:
		return CommandResult{
			Command: req.Command,
			Bind:    &BindNeedFirstReply{base: a.base, Address: req.Address},
		}, nil
	case CommandAssociate:
		return CommandResult{
			Command:   req.Command,
			Associate: &AssociateNeedReply{base: a.base, Address: req.Address},
		}, nil
	default:
		// DecodeRequest already validates Command; unreachable in practice.
		return CommandResult{}, negotiationError(a.transport, &InvalidCommandError{
			Version: ProtocolVersion, CommandByte: byte(req.Command),
		})
	}
}

// ConnectNeedReply is a CONNECT request waiting for its Response. Address
// is the destination the client asked to reach.
type ConnectNeedReply struct {
	base
	Address Address
}

// Reply writes the CONNECT Response. bound is the address the host
// actually established a connection from, normally the local address of
// the dial the host performed. A rep other than ReplySucceeded is still
// written, and Reply then returns a *NegotiationError.
func (c ConnectNeedReply) Reply(rep Reply, bound Address) (ConnectReady, error) {
	resp := Response{Reply: rep, Address: bound}
	if err := resp.Encode(c.transport); err != nil {
		return ConnectReady{}, negotiationError(c.transport, err)
	}
	if rep != ReplySucceeded {
		return ConnectReady{}, negotiationError(c.transport,
			fmt.Errorf("socks5: CONNECT refused: %s", rep))
	}
	return ConnectReady{base: c.base}, nil
}

// ConnectReady is a CONNECT control connection whose Response reported
// success. The caller now owns Transport() for relaying application data;
// this package does no relaying itself.
type ConnectReady struct {
	base
}

// BindNeedFirstReply is a BIND request waiting for the first Response,
// which reports the address the host is listening on for the second
// incoming connection.
type BindNeedFirstReply struct {
	base
	Address Address
}

// Reply writes the first BIND Response (the host's listening address).
func (b BindNeedFirstReply) Reply(rep Reply, listening Address) (BindNeedSecondReply, error) {
	resp := Response{Reply: rep, Address: listening}
	if err := resp.Encode(b.transport); err != nil {
		return BindNeedSecondReply{}, negotiationError(b.transport, err)
	}
	if rep != ReplySucceeded {
		return BindNeedSecondReply{}, negotiationError(b.transport,
			fmt.Errorf("socks5: BIND refused: %s", rep))
	}
	return BindNeedSecondReply{base: b.base}, nil
}

// BindNeedSecondReply is a BIND control connection waiting for the second
// Response, sent once the expected peer has connected to the host's
// listening socket.
type BindNeedSecondReply struct {
	base
}

// Reply writes the second BIND Response (the peer that connected).
func (b BindNeedSecondReply) Reply(rep Reply, peer Address) (BindReady, error) {
	resp := Response{Reply: rep, Address: peer}
	if err := resp.Encode(b.transport); err != nil {
		return BindReady{}, negotiationError(b.transport, err)
	}
	if rep != ReplySucceeded {
		return BindReady{}, negotiationError(b.transport,
			fmt.Errorf("socks5: BIND refused: %s", rep))
	}
	return BindReady{base: b.base}, nil
}

// BindReady is a BIND control connection whose second Response reported
// success.
type BindReady struct {
	base
}

// AssociateNeedReply is a UDP ASSOCIATE request waiting for its Response,
// which reports the host's UDP relay endpoint address.
type AssociateNeedReply struct {
	base
	Address Address
}

// Reply writes the ASSOCIATE Response naming the host's relay endpoint.
func (a AssociateNeedReply) Reply(rep Reply, relay Address) (AssociateReady, error) {
	resp := Response{Reply: rep, Address: relay}
	if err := resp.Encode(a.transport); err != nil {
		return AssociateReady{}, negotiationError(a.transport, err)
	}
	if rep != ReplySucceeded {
		return AssociateReady{}, negotiationError(a.transport,
			fmt.Errorf("socks5: UDP ASSOCIATE refused: %s", rep))
	}
	return AssociateReady{base: a.base}, nil
}

// AssociateReady is an established UDP ASSOCIATE control connection. Per
// RFC 1928, the relay stays alive only as long as this control connection
// is open; WaitUntilClosed blocks until the peer closes it (or ctx is
// canceled), so a host can tear down the paired Relay at the right time.
type AssociateReady struct {
	base
}

// WaitUntilClosed blocks until the control connection is closed by the
// peer, returns a read error, or ctx is canceled - whichever comes first.
func (a AssociateReady) WaitUntilClosed(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := a.transport.Read(buf)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
