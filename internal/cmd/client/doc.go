// Package client provides the `ordernotify` command-line client.
//
// The CLI talks to the HTTP gateway (and, for `watch --transport grpc`, the
// gRPC endpoint) to create orders, manage push subscriptions and follow a
// tenant's order stream from a terminal. It is primarily intended for
// developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the embedding application via a
// BaseURLFunc; the standalone binary reads ORDERNOTIFY_HTTP (default
// http://127.0.0.1:8080). The gRPC address is read from ORDERNOTIFY_GRPC
// (default 127.0.0.1:50051).
//
// Usage
//
//	ordernotify order create --tenant acme --customer Ada --total 12.50
//
//	# Follow new orders; reconnects with backoff until interrupted
//	ordernotify watch --tenant acme
//	ordernotify watch --tenant acme --transport grpc --filter 'total > 50'
//	ordernotify watch --tenant acme --limit 1
//
//	ordernotify push send --tenant acme --title "Kitchen" --body "Ticket ready"
//	ordernotify push public-key
//	ordernotify push diagnose
//
//	# Generate a signing key pair as environment assignments
//	ordernotify vapid generate --subject ops@example.com
//	# Check the local credential without starting the server
//	ordernotify vapid check --config ordernotify.yaml
package client
