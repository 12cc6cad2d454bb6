// Package grpcserver hosts the gRPC server: the standard health service and
// the server-streaming ordernotify.v1.OrderStream/Subscribe call, which
// carries the same frames as the SSE endpoint.
//
// Example:
//
//	s := grpcserver.New(rt, streamSvc, logger)
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
