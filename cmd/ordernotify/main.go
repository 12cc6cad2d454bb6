package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/ordernotify/internal/cmd/client"
	serverrun "github.com/rzbill/ordernotify/internal/cmd/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ordernotify",
		Short: "Order notification runtime CLI",
		Long:  "ordernotify streams new orders to connected dashboards and delivers web push notifications. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the server (HTTP and gRPC)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			path, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(ctx, path)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("http") {
				cfg.Server.HTTPAddr, _ = flags.GetString("http")
			}
			if flags.Changed("grpc") {
				cfg.Server.GRPCAddr, _ = flags.GetString("grpc")
			}
			if flags.Changed("data-dir") {
				cfg.Storage.DataDir, _ = flags.GetString("data-dir")
			}
			if flags.Changed("fsync") {
				cfg.Storage.Fsync, _ = flags.GetString("fsync")
			}
			if flags.Changed("log-level") {
				cfg.Log.Level, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-format") {
				cfg.Log.Format, _ = flags.GetString("log-format")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("ORDERNOTIFY_CONFIG"), "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("grpc", ":50051", "gRPC listen address")
	serverStartCmd.Flags().String("data-dir", "", "Data directory for the pebble store (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", "info", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "text", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd, apiURL)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("ORDERNOTIFY_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
