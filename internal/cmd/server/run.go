package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/ordernotify/internal/config"
	"github.com/rzbill/ordernotify/internal/metrics"
	"github.com/rzbill/ordernotify/internal/runtime"
	grpcserver "github.com/rzbill/ordernotify/internal/server/grpc"
	httpserver "github.com/rzbill/ordernotify/internal/server/http"
	"github.com/rzbill/ordernotify/internal/server/http/controllers"
	ordersvc "github.com/rzbill/ordernotify/internal/services/orders"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/services/push"
	logpkg "github.com/rzbill/ordernotify/pkg/log"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// LoadConfig layers defaults, the optional file at path, ORDERNOTIFY_*
// environment variables and Vault secrets, then validates the result.
func LoadConfig(ctx context.Context, path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, fmt.Errorf("environment: %w", err)
	}
	vc, err := cfgpkg.NewVaultClient(cfg.Vault)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.ApplyVaultSecrets(ctx, &cfg, vc); err != nil {
		return cfgpkg.Config{}, fmt.Errorf("vault: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

// Services holds the shared service instances used by both transports.
type Services struct {
	Orders     *ordersvc.Service
	Stream     *orderstream.Service
	Push       *push.Service
	Dispatcher *push.Dispatcher
}

// NewServices wires the services over rt. Order writes publish to the
// broadcast source unless storage already notifies on write, and dispatch
// push notifications when push.notifyOnCreate is set.
func NewServices(rt *runtime.Runtime, logger logpkg.Logger) Services {
	cfg := rt.Config()
	policy := rt.RetryPolicy()
	dispatcher := push.NewDispatcher(rt.Subscriptions(), push.DispatcherOptions{
		Credential: cfg.Push.Credential(),
		Sender:     push.NewWebPushSender(cfg.Push.TTL, cfg.Push.Timeout),
		Retry:      policy,
		Logger:     logger,
	})
	opts := ordersvc.Options{Logger: logger}
	if !rt.NotifiesOnWrite() {
		opts.Publisher = rt.Broadcast()
	}
	if cfg.Push.NotifyOnCreate {
		opts.Dispatcher = dispatcher
	}
	return Services{
		Orders: ordersvc.New(rt.Orders(), opts),
		Stream: orderstream.New(rt.Orders(), rt.Detectors(), orderstream.Options{
			Heartbeat: cfg.Stream.HeartbeatInterval,
			Retry:     policy,
			Logger:    logger,
		}),
		Push:       push.NewService(rt.Subscriptions(), dispatcher),
		Dispatcher: dispatcher,
	}
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := opts.Config

	procLogger := opts.Logger
	if procLogger == nil {
		l, err := logpkg.ApplyConfig(&logpkg.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			RedactKeys: []string{"vapid_private_key", "private_key"},
		})
		if err != nil {
			return err
		}
		procLogger = l
	}
	// Pebble and net/http log through the standard library.
	logpkg.RedirectStdLog(procLogger)
	metrics.Register()

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	svcs := NewServices(rt, procLogger)
	if err := svcs.Dispatcher.CredentialErr(); err != nil {
		procLogger.Warn("push delivery disabled", logpkg.Err(err))
	}

	procLogger.Info("Starting ordernotify server",
		logpkg.Str("grpc", cfg.Server.GRPCAddr),
		logpkg.Str("http", cfg.Server.HTTPAddr),
		logpkg.Str("storage", cfg.Storage.Driver),
		logpkg.Str("strategy", cfg.Detector.Strategy),
		logpkg.Str("broadcast", cfg.Broadcast.Driver),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	gsrv := grpcserver.New(rt, svcs.Stream, procLogger)
	hsrv := httpserver.New(rt, controllers.Services{
		Orders:     svcs.Orders,
		Stream:     svcs.Stream,
		Push:       svcs.Push,
		Credential: cfg.Push.Credential(),
	}, procLogger)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, cfg.Server.GRPCAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("grpc server failed", logpkg.Err(err))
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.Server.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server failed", logpkg.Err(err))
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-sctx.Done():
	case runErr = <-errCh:
		stop()
	}
	// Stop the servers before closing the runtime so no handler touches a
	// closed store.
	sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svcs.Stream.Shutdown(sdCtx); err != nil {
		procLogger.Warn("stream sessions did not close in time", logpkg.Err(err))
	}
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	svcs.Orders.Wait()
	procLogger.Info("ordernotify server stopped")
	return runErr
}
