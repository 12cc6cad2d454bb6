package client

import (
	"errors"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/ordernotify/internal/config"
	"github.com/rzbill/ordernotify/internal/credential"
)

// ErrCredentialNotReady is returned by `vapid check` when the credential
// would disable push delivery.
var ErrCredentialNotReady = errors.New("push credential not ready")

// NewVAPIDCommand constructs the `vapid` command group. Both subcommands
// work offline.
func NewVAPIDCommand() *cobra.Command {
	vapidCmd := &cobra.Command{Use: "vapid", Short: "Signing credential tools"}
	vapidCmd.AddCommand(newVAPIDGenerateCommand(), newVAPIDCheckCommand())
	return vapidCmd
}

// newVAPIDGenerateCommand constructs the `vapid generate` subcommand.
func newVAPIDGenerateCommand() *cobra.Command {
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a P-256 key pair as environment assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			priv, pub, err := webpush.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			if r := credential.Diagnose(credential.Values{PublicKey: pub, PrivateKey: priv, Subject: subject}); !r.KeyPairMatches {
				return errors.New("generated key pair failed validation")
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s_PUSH_VAPID_PUBLIC_KEY=%s\n", cfgpkg.EnvPrefix, pub)
			_, _ = fmt.Fprintf(out, "%s_PUSH_VAPID_PRIVATE_KEY=%s\n", cfgpkg.EnvPrefix, priv)
			if subject != "" {
				_, _ = fmt.Fprintf(out, "%s_PUSH_VAPID_SUBJECT=%s\n", cfgpkg.EnvPrefix, subject)
			}
			return nil
		},
	}
	genCmd.Flags().String("subject", "", "Contact address to emit alongside the keys")
	return genCmd
}

// newVAPIDCheckCommand constructs the `vapid check` subcommand.
func newVAPIDCheckCommand() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configured signing credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(path)
			if err != nil {
				return err
			}
			if err := cfgpkg.FromEnv(&cfg); err != nil {
				return err
			}
			vc, err := cfgpkg.NewVaultClient(cfg.Vault)
			if err != nil {
				return err
			}
			if err := cfgpkg.ApplyVaultSecrets(cmd.Context(), &cfg, vc); err != nil {
				return err
			}
			r := credential.Diagnose(cfg.Push.Credential())
			if err := printJSON(cmd.OutOrStdout(), r); err != nil {
				return err
			}
			if !r.Ready {
				return ErrCredentialNotReady
			}
			return nil
		},
	}
	checkCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	return checkCmd
}
