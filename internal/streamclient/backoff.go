package streamclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBase = time.Second
	DefaultCap  = 30 * time.Second
)

// Backoff yields reconnect delays: Base, 2·Base, 4·Base, ... capped at Cap.
// No jitter is applied. Not safe for concurrent use.
type Backoff struct {
	b        *backoff.ExponentialBackOff
	failures int
}

// NewBackoff returns a Backoff; zero values select the defaults.
func NewBackoff(base, limit time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBase
	}
	if limit <= 0 {
		limit = DefaultCap
	}
	if limit < base {
		limit = base
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(base),
		backoff.WithMaxInterval(limit),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	return &Backoff{b: b}
}

// Next records a failure and returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.failures++
	return b.b.NextBackOff()
}

// Reset clears the failure count after a successful open.
func (b *Backoff) Reset() {
	b.failures = 0
	b.b.Reset()
}

// Failures is the number of consecutive failures recorded.
func (b *Backoff) Failures() int { return b.failures }
