package detector

import (
	"context"
	"sync"
	"time"

	"github.com/rzbill/ordernotify/internal/metrics"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Poller runs a bounded cursor query every interval. When a query fills the
// limit the next Wait returns immediately so a backlog drains without waiting
// a full interval per page.
type Poller struct {
	store    orders.Store
	tenantID string
	interval time.Duration
	limit    int
	policy   retry.Policy
	logger   log.Logger

	ticker    *time.Ticker
	more      bool
	closeOnce sync.Once
}

// NewPoller returns a Poller for tenantID.
func NewPoller(store orders.Store, tenantID string, interval time.Duration, limit int, policy retry.Policy, logger log.Logger) *Poller {
	if limit <= 0 {
		limit = 100
	}
	return &Poller{
		store:    store,
		tenantID: tenantID,
		interval: interval,
		limit:    limit,
		policy:   policy,
		logger:   logger,
		ticker:   time.NewTicker(interval),
	}
}

func (p *Poller) Wait(ctx context.Context) error {
	if p.more {
		p.more = false
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *Poller) SinceCursor(ctx context.Context, cursor int64) ([]orders.SummaryEvent, error) {
	evs, err := retry.Value(ctx, p.policy, func(ctx context.Context) ([]orders.SummaryEvent, error) {
		return p.store.ListSince(ctx, p.tenantID, cursor, p.limit)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.DetectorErrorsTotal.WithLabelValues("poll").Inc()
		p.logger.Warn("poll failed, treating as empty", log.Int64("cursor", cursor), log.Err(err))
		return nil, nil
	}
	p.more = len(evs) >= p.limit
	return evs, nil
}

func (p *Poller) Close() error {
	p.closeOnce.Do(p.ticker.Stop)
	return nil
}
