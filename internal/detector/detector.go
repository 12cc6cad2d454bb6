// Package detector finds orders created after a session's cursor. Two
// strategies implement ChangeDetector: Poller queries the order store on an
// interval, Listener consumes a tenant broadcast channel. Sessions use either
// through the same interface.
package detector

import (
	"context"
	"errors"

	"github.com/rzbill/ordernotify/internal/orders"
)

// ErrSourceClosed is returned by Wait when the broadcast source went away.
var ErrSourceClosed = errors.New("detector: broadcast source closed")

// ChangeDetector is scoped to exactly one tenant.
type ChangeDetector interface {
	// Wait blocks until SinceCursor may have something to return.
	Wait(ctx context.Context) error
	// SinceCursor returns qualifying events. Storage errors are absorbed and
	// reported as an empty result.
	SinceCursor(ctx context.Context, cursor int64) ([]orders.SummaryEvent, error)
	// Close releases strategy resources. Safe to call more than once.
	Close() error
}
