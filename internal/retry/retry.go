// Package retry bounds local retries of transient storage errors.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the retry budget: Attempts total tries, waiting Base, 2·Base, ...
// between them.
type Policy struct {
	Attempts int
	Base     time.Duration
}

// Default is two attempts with a 500ms base.
var Default = Policy{Attempts: 2, Base: 500 * time.Millisecond}

func (p Policy) backoff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Base
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, returns a Permanent error, the budget is spent
// or ctx is done.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	return backoff.Retry(func() error { return fn(ctx) }, p.backoff(ctx))
}

// Value is Do for functions that return a result.
func Value[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) { return fn(ctx) }, p.backoff(ctx))
}

// Permanent wraps err so that Do and Value stop immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
