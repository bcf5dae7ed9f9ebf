// Package ratelimit bounds the rate at which socks5d accepts new control
// connections, so a burst of clients cannot exhaust file descriptors or
// goroutines before the configured connection limit kicks in.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Accepter gates calls to Wait to at most n per second, with burst allowed
// to absorb short spikes. It wraps golang.org/x/time/rate the same way the
// file-transfer throughput limiter does, but counts connections instead of
// bytes.
type Accepter struct {
	limiter *rate.Limiter
}

// NewAccepter creates an Accepter. A non-positive perSecond disables
// limiting: Wait always returns immediately.
func NewAccepter(perSecond float64, burst int) *Accepter {
	if perSecond <= 0 {
		return &Accepter{}
	}
	return &Accepter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the next accept is permitted or ctx is canceled.
func (a *Accepter) Wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// Allow reports whether an accept is permitted right now, without blocking,
// consuming a token if so.
func (a *Accepter) Allow() bool {
	if a.limiter == nil {
		return true
	}
	return a.limiter.Allow()
}
