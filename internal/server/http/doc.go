// Package httpserver is the REST and SSE gateway: order writes, the live
// order stream, push subscription management, dispatch triggers, credential
// diagnostics, health and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	s := httpserver.New(rt, controllers.Services{Orders: orderSvc, Stream: streamSvc, Push: pushSvc}, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
