package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/streamclient"
	logpkg "github.com/rzbill/ordernotify/pkg/log"
)

var errLimitReached = errors.New("limit reached")

// NewWatchCommand constructs the `watch` command. It prints each new order as
// one JSON line and reconnects with backoff until interrupted.
func NewWatchCommand(baseURL BaseURLFunc) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow new orders for a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			filter, _ := cmd.Flags().GetString("filter")
			kind, _ := cmd.Flags().GetString("transport")
			limit, _ := cmd.Flags().GetInt("limit")
			all, _ := cmd.Flags().GetBool("all")
			verbose, _ := cmd.Flags().GetBool("verbose")

			var tr streamclient.Transport
			switch kind {
			case "sse":
				tr = &streamclient.SSETransport{BaseURL: baseURL()}
			case "grpc":
				conn, err := dialGRPC()
				if err != nil {
					return err
				}
				defer func() { _ = conn.Close() }()
				tr = &streamclient.GRPCTransport{Conn: conn}
			default:
				return fmt.Errorf("invalid --transport %q; use sse|grpc", kind)
			}

			logger := logpkg.NewNopLogger()
			if verbose {
				logger = logpkg.NewLogger(
					logpkg.WithFormatter(&logpkg.TextFormatter{}),
					logpkg.WithOutput(logpkg.NewWriterOutput(cmd.ErrOrStderr())),
				)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			err := streamclient.New(tr, logger).Run(cmd.Context(), streamclient.Request{TenantID: tenantID, Filter: filter},
				func(f orderstream.Frame) error {
					if f.Type != orderstream.FrameNewOrder && !all {
						return nil
					}
					if err := enc.Encode(f); err != nil {
						return err
					}
					if f.Type == orderstream.FrameNewOrder {
						seen++
						if limit > 0 && seen >= limit {
							return errLimitReached
						}
					}
					return nil
				})
			if errors.Is(err, errLimitReached) {
				return nil
			}
			return err
		},
	}
	watchCmd.Flags().StringP("tenant", "t", "", "Tenant id")
	watchCmd.Flags().String("filter", "", "CEL filter, e.g. total > 50 (server-side)")
	watchCmd.Flags().String("transport", "sse", "Transport: sse|grpc")
	watchCmd.Flags().Int("limit", 0, "Stop after N new orders (0 = infinite)")
	watchCmd.Flags().Bool("all", false, "Also print connected and keepalive frames")
	watchCmd.Flags().BoolP("verbose", "v", false, "Log reconnects to stderr")
	_ = watchCmd.MarkFlagRequired("tenant")
	return watchCmd
}
