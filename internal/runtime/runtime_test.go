package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/ordernotify/internal/config"
	"github.com/rzbill/ordernotify/internal/detector"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
)

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Fsync = "never"
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(context.Background(), Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.DB() == nil || rt.Orders() == nil || rt.Subscriptions() == nil || rt.Broadcast() == nil {
		t.Fatalf("runtime not fully wired")
	}
	if rt.NotifiesOnWrite() {
		t.Fatalf("pebble driver must not report notify-on-write")
	}
}

func TestStoresShareDB(t *testing.T) {
	rt, err := Open(context.Background(), Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	ctx := context.Background()
	o, err := rt.Orders().Create(ctx, orders.Order{TenantID: "acme", CustomerName: "Ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	top, err := rt.Orders().MaxActiveID(ctx, "acme")
	if err != nil || top != o.ID {
		t.Fatalf("max active id = %d, %v; want %d", top, err, o.ID)
	}
	if _, err := rt.Subscriptions().ListActive(ctx, "acme"); err != nil {
		t.Fatalf("list active: %v", err)
	}
}

func TestDetectorsFollowConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detector.Strategy = cfgpkg.StrategyNotify
	cfg.Detector.PollInterval = time.Second
	rt, err := Open(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	det, err := rt.Detectors().New(context.Background(), "acme")
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()
	if _, ok := det.(*detector.Listener); !ok {
		t.Fatalf("detector = %T, want *detector.Listener", det)
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retry.Attempts = 0
	rt := &Runtime{config: cfg}
	if got := rt.RetryPolicy(); got != retry.Default {
		t.Fatalf("policy = %+v, want default", got)
	}
	cfg.Retry = cfgpkg.RetryConfig{Attempts: 3, Base: time.Millisecond}
	rt = &Runtime{config: cfg}
	if got := rt.RetryPolicy(); got.Attempts != 3 || got.Base != time.Millisecond {
		t.Fatalf("policy = %+v", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "cassandra"
	if _, err := Open(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
