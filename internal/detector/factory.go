package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/ordernotify/internal/broadcast"
	"github.com/rzbill/ordernotify/internal/config"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Factory builds the configured strategy for each new session.
type Factory struct {
	Strategy     string
	Store        orders.Store
	Source       broadcast.Source
	PollInterval time.Duration
	PollLimit    int
	Retry        retry.Policy
	Logger       log.Logger
}

// New returns a detector scoped to tenantID.
func (f *Factory) New(ctx context.Context, tenantID string) (ChangeDetector, error) {
	logger := f.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With(log.Component("detector"), log.Tenant(tenantID), log.Str("strategy", f.Strategy))
	switch f.Strategy {
	case config.StrategyPoll, "":
		if f.Store == nil {
			return nil, fmt.Errorf("detector: poll strategy requires an order store")
		}
		interval := f.PollInterval
		if interval <= 0 {
			interval = 3 * time.Second
		}
		return NewPoller(f.Store, tenantID, interval, f.PollLimit, f.Retry, logger), nil
	case config.StrategyNotify:
		if f.Source == nil {
			return nil, fmt.Errorf("detector: notify strategy requires a broadcast source")
		}
		return NewListener(ctx, f.Source, f.Store, tenantID, f.Retry, logger)
	default:
		return nil, fmt.Errorf("detector: unknown strategy %q", f.Strategy)
	}
}
