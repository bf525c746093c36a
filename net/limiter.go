package net

import (
	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// recvLimiter is a token bucket applied to inbound messages of one
// connection. Messages over budget are dropped, never delayed.
type recvLimiter struct {
	limiter *rate.Limiter
}

// newRecvLimiter returns nil when limit is not positive; a nil limiter
// allows everything.
func newRecvLimiter(limit, burst int) *recvLimiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = limit
	}
	return &recvLimiter{limiter: rate.NewLimiter(rate.Limit(limit), burst)}
}

func (l *recvLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// sendPacer spaces outbound frames of one connection with a leaky bucket.
// Take blocks the connection's send goroutine only.
type sendPacer struct {
	limiter ratelimit.Limiter
}

func newSendPacer(limit int) *sendPacer {
	if limit <= 0 {
		return nil
	}
	return &sendPacer{limiter: ratelimit.New(limit)}
}

func (p *sendPacer) Take() {
	if p == nil {
		return
	}
	_ = p.limiter.Take()
}
