package socks5

import (
	"errors"
	"net"
)

// replyForError classifies a dial/network error the way the reference
// CONNECT handler does before writing a failure Response: DNS failures map
// to HostUnreachable, timeouts to TTLExpired, other errors from a "dial"
// operation to HostUnreachable, and anything else falls back to
// GeneralFailure.
func replyForError(err error) Reply {
	if err == nil {
		return ReplySucceeded
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReplyHostUnreachable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return ReplyTTLExpired
		}
		if opErr.Op == "dial" {
			return ReplyHostUnreachable
		}
	}

	return ReplyGeneralFailure
}
