package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/ordernotify/internal/broadcast"
	cfgpkg "github.com/rzbill/ordernotify/internal/config"
	"github.com/rzbill/ordernotify/internal/detector"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	pebblestore "github.com/rzbill/ordernotify/internal/storage/pebble"
	"github.com/rzbill/ordernotify/internal/storage/postgres"
	"github.com/rzbill/ordernotify/internal/subscriptions"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime wires the configured storage driver and broadcast source for a
// single process.
type Runtime struct {
	config cfgpkg.Config
	logger log.Logger

	db *pebblestore.DB
	pg *postgres.DB

	orders orders.Store
	subs   subscriptions.Registry
	source broadcast.Source
}

// Open initializes storage and the broadcast source.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	rt := &Runtime{config: opts.Config, logger: logger.WithComponent("runtime")}
	if err := rt.openStorage(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := rt.openBroadcast(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.logger.Info("runtime ready",
		log.Str("storage", rt.config.Storage.Driver),
		log.Str("broadcast", rt.config.Broadcast.Driver),
		log.Str("detector", rt.config.Detector.Strategy))
	return rt, nil
}

func (r *Runtime) openStorage(ctx context.Context) error {
	sc := r.config.Storage
	switch sc.Driver {
	case cfgpkg.DriverPebble, "":
		dir := sc.DataDir
		if dir == "" {
			dir = cfgpkg.DefaultDataDir()
		}
		fsync, err := pebblestore.ParseFsync(sc.Fsync)
		if err != nil {
			return err
		}
		db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: fsync, Metrics: pebblestore.PrometheusMetrics{}})
		if err != nil {
			return fmt.Errorf("open pebble at %s: %w", dir, err)
		}
		r.db = db
		r.orders = orders.NewPebbleStore(db)
		r.subs = subscriptions.NewPebbleRegistry(db)
	case cfgpkg.DriverPostgres:
		pg, err := postgres.Open(ctx, sc.PostgresURL)
		if err != nil {
			return err
		}
		r.pg = pg
		r.orders = pg.Orders()
		r.subs = pg.Subscriptions()
	default:
		return fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
	return nil
}

func (r *Runtime) openBroadcast(ctx context.Context) error {
	bc := r.config.Broadcast
	logger := r.logger.WithComponent("broadcast")
	switch bc.Driver {
	case cfgpkg.BroadcastLocal, "":
		r.source = broadcast.NewHub(bc.Buffer)
	case cfgpkg.BroadcastPostgres:
		if r.pg == nil {
			// Broadcast-only connection next to embedded storage.
			pg, err := postgres.Open(ctx, r.config.Storage.PostgresURL)
			if err != nil {
				return err
			}
			r.pg = pg
		}
		r.source = broadcast.NewPGSource(r.pg.SQL(), r.pg.URL(), bc.Buffer, logger)
	case cfgpkg.BroadcastNATS:
		src, err := broadcast.NewNATSSource(bc.NATSURL, bc.Buffer, logger)
		if err != nil {
			return err
		}
		r.source = src
	default:
		return fmt.Errorf("unknown broadcast driver %q", bc.Driver)
	}
	return nil
}

// Close closes the broadcast source and then storage.
func (r *Runtime) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	if r.pg != nil {
		errs = append(errs, r.pg.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth verifies that storage answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.pg != nil {
		if err := r.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if r.db != nil {
		if err := r.db.Ping(); err != nil {
			return fmt.Errorf("pebble: %w", err)
		}
	}
	if r.orders == nil {
		return errors.New("storage not open")
	}
	return nil
}

// Orders returns the order store of the configured driver.
func (r *Runtime) Orders() orders.Store { return r.orders }

// Subscriptions returns the subscription registry of the configured driver.
func (r *Runtime) Subscriptions() subscriptions.Registry { return r.subs }

// Broadcast returns the tenant broadcast source.
func (r *Runtime) Broadcast() broadcast.Source { return r.source }

// NotifiesOnWrite reports whether storage itself publishes new orders, so
// writers must not publish again.
func (r *Runtime) NotifiesOnWrite() bool {
	return r.config.Storage.Driver == cfgpkg.DriverPostgres && r.config.Broadcast.Driver == cfgpkg.BroadcastPostgres
}

// Detectors returns the per-session change detector factory.
func (r *Runtime) Detectors() *detector.Factory {
	return &detector.Factory{
		Strategy:     r.config.Detector.Strategy,
		Store:        r.orders,
		Source:       r.source,
		PollInterval: r.config.Detector.PollInterval,
		PollLimit:    r.config.Detector.PollLimit,
		Retry:        r.RetryPolicy(),
		Logger:       r.logger,
	}
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// DB exposes the embedded store when the pebble driver is active.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// RetryPolicy is the configured budget for transient storage errors.
func (r *Runtime) RetryPolicy() retry.Policy {
	p := retry.Policy{Attempts: r.config.Retry.Attempts, Base: r.config.Retry.Base}
	if p.Attempts < 1 {
		return retry.Default
	}
	return p
}
