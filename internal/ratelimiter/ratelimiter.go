// Package ratelimiter throttles how fast a listener admits new connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket over connection admissions.
//
// A Limiter built with a non-positive rate admits everything and never
// blocks. Bursts up to the configured size are admitted immediately; beyond
// that, admissions are spread at the sustained rate.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter admitting perSecond connections per second with the
// given burst.
//
// Parameters:
//   - perSecond: Sustained admissions per second; <= 0 means unlimited
//   - burst: Bucket capacity; values < 1 are raised to 1 for limited rates
//
// Example:
//
//	// 500 new connections/s sustained, 1000 at once
//	limiter := ratelimiter.New(500, 1000)
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Unlimited reports whether the limiter admits everything.
func (l *Limiter) Unlimited() bool {
	return l.limiter.Limit() == rate.Inf
}

// Admit blocks until the next connection may be admitted or ctx is done.
//
// Returns nil when admitted, or an error if ctx was cancelled first (or the
// wait would outlast ctx's deadline).
func (l *Limiter) Admit(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// TryAdmit admits a connection only if a token is available right now.
func (l *Limiter) TryAdmit() bool {
	return l.limiter.Allow()
}

// Available returns the tokens currently in the bucket. Intended for
// monitoring; the value may change immediately after the call.
func (l *Limiter) Available() float64 {
	return l.limiter.Tokens()
}
