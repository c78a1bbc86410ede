// Package retry implements the transient-failure retry policy shared by
// every remote call. Only errors the errors package marks retryable are
// absorbed; anything else is returned immediately and unchanged.
package retry

import (
	"context"
	"math/rand"
	"time"

	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
)

type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	JitterMS  int
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 120 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		JitterMS:  75,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 120 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the sleep before the given retry attempt (attempt >= 1).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.JitterMS > 0 {
		d += time.Duration(rand.Intn(p.JitterMS)) * time.Millisecond
	}
	return d
}

// Do invokes fn up to p.Attempts times, sleeping between attempts. A
// non-retryable error stops immediately; after the final attempt the last
// error is returned as-is.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return zero, clierr.Wrap(clierr.CodeUnavailable, "retry cancelled", ctx.Err())
			case <-time.After(p.Backoff(attempt - 1)):
			}
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !clierr.Retryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
