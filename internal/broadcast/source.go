// Package broadcast carries order event payloads on tenant-scoped channels.
// A Source is selected by deployment: Hub for a single process, PGSource for
// Postgres LISTEN/NOTIFY, NATSSource for a NATS cluster.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by operations on a closed Source.
var ErrClosed = errors.New("broadcast: source closed")

// Source publishes and subscribes to tenant channels.
type Source interface {
	Publish(ctx context.Context, tenantID string, payload []byte) error
	Subscribe(ctx context.Context, tenantID string) (*Subscription, error)
	Close() error
}

// Subscription delivers payloads for one tenant. C is closed after Close or
// when the Source shuts down. An empty payload on C carries no event; it only
// wakes the reader after a gap was recorded.
type Subscription struct {
	C <-chan []byte

	gap     *atomic.Bool
	once    sync.Once
	release func()
}

func newSubscription(c <-chan []byte, gap *atomic.Bool, release func()) *Subscription {
	if gap == nil {
		gap = new(atomic.Bool)
	}
	return &Subscription{C: c, gap: gap, release: release}
}

// Gap reports whether messages may have been lost since the last TakeGap.
func (s *Subscription) Gap() bool { return s.gap.Load() }

// TakeGap reports and clears the lost-messages flag.
func (s *Subscription) TakeGap() bool { return s.gap.Swap(false) }

// MarkGap records that messages may have been lost.
func (s *Subscription) MarkGap() { s.gap.Store(true) }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
	return nil
}
