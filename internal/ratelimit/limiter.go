package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter admits one item per call, blocking until capacity is available or
// the context is cancelled.
type Limiter interface {
	WaitToPush(ctx context.Context) error
}

// PerSecond returns a Limiter admitting up to ratePerSec items per second
// with a one-second burst window. A rate <= 0 returns an unlimited Limiter.
func PerSecond(ratePerSec float64) Limiter {
	if ratePerSec <= 0 {
		return unlimited{}
	}
	burst := int(math.Ceil(ratePerSec))
	if burst < 1 {
		burst = 1
	}
	return &tokenLimiter{inner: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

type tokenLimiter struct {
	inner *rate.Limiter
}

func (l *tokenLimiter) WaitToPush(ctx context.Context) error {
	return l.inner.Wait(ctx)
}

// UpdateRate adjusts the admission rate in place. Waiters admitted under the
// old rate are unaffected.
func (l *tokenLimiter) UpdateRate(ratePerSec float64) {
	l.inner.SetLimit(rate.Limit(ratePerSec))
	burst := int(math.Ceil(ratePerSec))
	if burst < 1 {
		burst = 1
	}
	l.inner.SetBurst(burst)
}

type unlimited struct{}

func (unlimited) WaitToPush(ctx context.Context) error { return ctx.Err() }
