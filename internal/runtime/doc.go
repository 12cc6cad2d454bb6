// Package runtime opens the configured storage driver (embedded pebble or
// Postgres) and broadcast source (in-process hub, Postgres LISTEN/NOTIFY or
// NATS) and hands them to the services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	o, _ := rt.Orders().Create(ctx, orders.Order{TenantID: "acme"})
//	det, _ := rt.Detectors().New(ctx, "acme")
package runtime
