package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultClient wraps a HashiCorp Vault client bound to one KV v2 mount.
type VaultClient struct {
	client *vault.Client
	mount  string
}

// token resolves the Vault token from the inline value or the token file.
func (c VaultConfig) token() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	if c.TokenPath != "" {
		b, err := os.ReadFile(c.TokenPath)
		if err != nil {
			return "", fmt.Errorf("read vault token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", errors.New("vault token not configured")
}

// NewVaultClient returns nil, nil when Vault is disabled.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.Address
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	tok, err := cfg.token()
	if err != nil {
		return nil, err
	}
	client.SetToken(tok)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &VaultClient{client: client, mount: mount}, nil
}

// GetSecret reads the latest version of a KV v2 secret.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if vc == nil {
		return nil, errors.New("vault client is not initialized")
	}
	secret, err := vc.client.KVv2(vc.mount).Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}
	return secret.Data, nil
}

// ApplyVaultSecrets overlays the push signing credential from Vault when
// push.vaultPath is set. Missing keys leave the current values untouched.
func ApplyVaultSecrets(ctx context.Context, cfg *Config, vc *VaultClient) error {
	if vc == nil || cfg.Push.VaultPath == "" {
		return nil
	}
	data, err := vc.GetSecret(ctx, cfg.Push.VaultPath)
	if err != nil {
		return err
	}
	if v, ok := data["public_key"].(string); ok && v != "" {
		cfg.Push.VAPIDPublicKey = v
	}
	if v, ok := data["private_key"].(string); ok && v != "" {
		cfg.Push.VAPIDPrivateKey = v
	}
	if v, ok := data["subject"].(string); ok && v != "" {
		cfg.Push.VAPIDSubject = v
	}
	return nil
}
