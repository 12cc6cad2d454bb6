package client

import (
	"fmt"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/ordernotify/internal/cmd/client/transports"
	"github.com/rzbill/ordernotify/internal/services/push"
	"github.com/rzbill/ordernotify/internal/subscriptions"
)

// NewPushCommand constructs the `push` command group.
func NewPushCommand(baseURL BaseURLFunc) *cobra.Command {
	pushCmd := &cobra.Command{Use: "push", Short: "Push notification operations"}
	pushCmd.AddCommand(
		newPushSendCommand(baseURL),
		newPushSubscribeCommand(baseURL),
		newPushUnsubscribeCommand(baseURL),
		newPushPublicKeyCommand(baseURL),
		newPushDiagnoseCommand(baseURL),
	)
	return pushCmd
}

// newPushSendCommand constructs the `push send` subcommand.
func newPushSendCommand(baseURL BaseURLFunc) *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification to every active subscription of a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			title, _ := cmd.Flags().GetString("title")
			body, _ := cmd.Flags().GetString("body")
			url, _ := cmd.Flags().GetString("url")
			res, err := getTransport(baseURL).Dispatch(cmd.Context(), transports.DispatchRequest{
				TenantID:  tenantID,
				Title:     title,
				Body:      body,
				TargetURL: url,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "succeeded: %d failed: %d\n", res.Succeeded, res.Failed)
			return nil
		},
	}
	sendCmd.Flags().StringP("tenant", "t", "", "Tenant id")
	sendCmd.Flags().String("title", "", "Notification title")
	sendCmd.Flags().String("body", "", "Notification body")
	sendCmd.Flags().String("url", "", "Target URL opened on click")
	_ = sendCmd.MarkFlagRequired("tenant")
	_ = sendCmd.MarkFlagRequired("title")
	return sendCmd
}

// newPushSubscribeCommand constructs the `push subscribe` subcommand.
func newPushSubscribeCommand(baseURL BaseURLFunc) *cobra.Command {
	subCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Register a push subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			endpoint, _ := cmd.Flags().GetString("endpoint")
			p256dh, _ := cmd.Flags().GetString("p256dh")
			auth, _ := cmd.Flags().GetString("auth")
			id, err := getTransport(baseURL).Subscribe(cmd.Context(), push.SubscribeRequest{
				TenantID:  tenantID,
				Endpoint:  endpoint,
				Keys:      subscriptions.Keys{P256dh: p256dh, Auth: auth},
				UserAgent: "ordernotify-cli",
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "id:", id)
			return nil
		},
	}
	subCmd.Flags().StringP("tenant", "t", "", "Tenant id")
	subCmd.Flags().String("endpoint", "", "Push service endpoint URL")
	subCmd.Flags().String("p256dh", "", "Subscriber public key (base64url)")
	subCmd.Flags().String("auth", "", "Subscriber auth secret (base64url)")
	for _, f := range []string{"tenant", "endpoint", "p256dh", "auth"} {
		_ = subCmd.MarkFlagRequired(f)
	}
	return subCmd
}

// newPushUnsubscribeCommand constructs the `push unsubscribe` subcommand.
func newPushUnsubscribeCommand(baseURL BaseURLFunc) *cobra.Command {
	unsubCmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Deactivate a push subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoint, _ := cmd.Flags().GetString("endpoint")
			if err := getTransport(baseURL).Unsubscribe(cmd.Context(), endpoint); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	unsubCmd.Flags().String("endpoint", "", "Push service endpoint URL")
	_ = unsubCmd.MarkFlagRequired("endpoint")
	return unsubCmd
}

// newPushPublicKeyCommand constructs the `push public-key` subcommand.
func newPushPublicKeyCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "public-key",
		Short: "Print the server's application server public key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := getTransport(baseURL).PublicKey(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

// newPushDiagnoseCommand constructs the `push diagnose` subcommand.
func newPushDiagnoseCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Show the server's push credential diagnostic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := getTransport(baseURL).Diagnostics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
}
