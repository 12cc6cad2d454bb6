// Package serverrun exposes the shared Run entrypoint used by the CLI to
// start the runtime with its HTTP and gRPC servers, handling lifecycle and
// shutdown.
//
// Example:
//
//	cfg, err := serverrun.LoadConfig(ctx, "ordernotify.yaml")
//	if err != nil {
//		return err
//	}
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
