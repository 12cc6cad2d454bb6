package detector

import (
	"context"
	"encoding/json"

	"github.com/rzbill/ordernotify/internal/broadcast"
	"github.com/rzbill/ordernotify/internal/metrics"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/pkg/log"
)

// LateWindow is how far below the session cursor an event may arrive and
// still be emitted. Broadcast order need not match id order, and a catch-up
// read after a gap starts this far below the cursor.
const LateWindow = 1024

// catchUpPage bounds each store read during a catch-up.
const catchUpPage = 256

// Listener decodes broadcast messages straight into events. Messages may
// arrive out of id order; the session dedupes by id. When the source reports
// a gap (dropped or undelivered messages) and a store is set, the next
// SinceCursor re-reads the store from LateWindow below the cursor.
type Listener struct {
	sub      *broadcast.Subscription
	store    orders.Store
	tenantID string
	policy   retry.Policy
	logger   log.Logger
	pending  []orders.SummaryEvent
}

// NewListener subscribes to the tenant channel immediately so that nothing
// published after construction is missed. store may be nil, in which case
// gaps are logged but not filled.
func NewListener(ctx context.Context, src broadcast.Source, store orders.Store, tenantID string, policy retry.Policy, logger log.Logger) (*Listener, error) {
	sub, err := src.Subscribe(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Listener{sub: sub, store: store, tenantID: tenantID, policy: policy, logger: logger}, nil
}

func (l *Listener) Wait(ctx context.Context) error {
	for len(l.pending) == 0 && !l.sub.Gap() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-l.sub.C:
			if !ok {
				return ErrSourceClosed
			}
			l.accept(msg)
		}
		// Take whatever else is already buffered.
	drain:
		for {
			select {
			case msg, ok := <-l.sub.C:
				if !ok {
					break drain
				}
				l.accept(msg)
			default:
				break drain
			}
		}
	}
	return nil
}

func (l *Listener) accept(msg []byte) {
	if len(msg) == 0 {
		return
	}
	var ev orders.SummaryEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		metrics.DetectorErrorsTotal.WithLabelValues("notify").Inc()
		l.logger.Warn("dropping undecodable broadcast message", log.Err(err))
		return
	}
	if ev.TenantID != "" && ev.TenantID != l.tenantID {
		return
	}
	if ev.Status.Terminal() {
		return
	}
	ev.TenantID = l.tenantID
	l.pending = append(l.pending, ev)
}

func (l *Listener) SinceCursor(ctx context.Context, cursor int64) ([]orders.SummaryEvent, error) {
	out := l.pending
	l.pending = nil
	if l.sub.TakeGap() {
		missed, err := l.catchUp(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.DetectorErrorsTotal.WithLabelValues("notify").Inc()
			l.logger.Warn("catch-up read failed, will retry on next wake", log.Int64("cursor", cursor), log.Err(err))
			l.sub.MarkGap()
		}
		out = append(out, missed...)
	}
	return out, ctx.Err()
}

// catchUp reads every qualifying order above cursor-LateWindow.
func (l *Listener) catchUp(ctx context.Context, cursor int64) ([]orders.SummaryEvent, error) {
	if l.store == nil {
		l.logger.Warn("broadcast gap detected, no store to fill it from")
		return nil, nil
	}
	from := cursor - LateWindow
	if from < 0 {
		from = 0
	}
	var out []orders.SummaryEvent
	for {
		page, err := retry.Value(ctx, l.policy, func(ctx context.Context) ([]orders.SummaryEvent, error) {
			return l.store.ListSince(ctx, l.tenantID, from, catchUpPage)
		})
		if err != nil {
			return out, err
		}
		out = append(out, page...)
		if len(page) < catchUpPage {
			l.logger.Debug("broadcast gap filled", log.Int64("from", cursor-LateWindow), log.Int("events", len(out)))
			return out, nil
		}
		from = page[len(page)-1].OrderID
	}
}

func (l *Listener) Close() error {
	return l.sub.Close()
}
