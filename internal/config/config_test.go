package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("http addr default: %q", cfg.Server.HTTPAddr)
	}
	if cfg.Detector.Strategy != StrategyPoll || cfg.Detector.PollInterval != 3*time.Second {
		t.Fatalf("detector defaults: %+v", cfg.Detector)
	}
	if cfg.Stream.HeartbeatInterval != 30*time.Second {
		t.Fatalf("heartbeat default")
	}
	if cfg.Push.TTL != 24*time.Hour || cfg.Push.Timeout != 10*time.Second {
		t.Fatalf("push defaults: %+v", cfg.Push)
	}
	if cfg.Retry.Attempts != 2 {
		t.Fatalf("retry attempts default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ordernotify.json")
	data := []byte(`{"detector":{"strategy":"notify"},"stream":{"heartbeatInterval":5000000000}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detector.Strategy != StrategyNotify {
		t.Fatalf("expected notify")
	}
	if cfg.Stream.HeartbeatInterval != 5*time.Second {
		t.Fatalf("expected 5s, got %v", cfg.Stream.HeartbeatInterval)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("unset keys keep defaults")
	}
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ordernotify.yaml")
	if err := os.WriteFile(file, []byte("server:\n  httpAddr: \":9090\"\n  bogus: 1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ordernotify.yml")
	body := "server:\n  httpAddr: \":9090\"\npush:\n  vapidSubject: ops@example.com\n  notifyOnCreate: false\n"
	if err := os.WriteFile(file, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9090" || cfg.Push.VAPIDSubject != "ops@example.com" || cfg.Push.NotifyOnCreate {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("ORDERNOTIFY_STORAGE_DRIVER", "postgres")
	t.Setenv("ORDERNOTIFY_STORAGE_POSTGRES_URL", "postgres://localhost/orders")
	t.Setenv("ORDERNOTIFY_DETECTOR_POLL_INTERVAL", "750ms")
	t.Setenv("ORDERNOTIFY_PUSH_VAPID_SUBJECT", "mailto:ops@example.com")
	t.Setenv("ORDERNOTIFY_PUSH_NOTIFY_ON_CREATE", "false")
	if err := FromEnv(&cfg); err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.PostgresURL != "postgres://localhost/orders" {
		t.Fatalf("storage override: %+v", cfg.Storage)
	}
	if cfg.Detector.PollInterval != 750*time.Millisecond {
		t.Fatalf("duration override: %v", cfg.Detector.PollInterval)
	}
	if cfg.Push.VAPIDSubject != "mailto:ops@example.com" || cfg.Push.NotifyOnCreate {
		t.Fatalf("push override: %+v", cfg.Push)
	}
	if cfg.Stream.HeartbeatInterval != 30*time.Second {
		t.Fatalf("unset env must keep default")
	}
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	cfg := Default()
	t.Setenv("ORDERNOTIFY_PUSH_TTL", "forever")
	if err := FromEnv(&cfg); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"unknown strategy", func(c *Config) { c.Detector.Strategy = "push" }},
		{"zero poll interval", func(c *Config) { c.Detector.PollInterval = 0 }},
		{"nats without url", func(c *Config) { c.Broadcast.Driver = BroadcastNATS }},
		{"zero heartbeat", func(c *Config) { c.Stream.HeartbeatInterval = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateIgnoresMalformedCredential(t *testing.T) {
	cfg := Default()
	cfg.Push.VAPIDPublicKey = "not-a-key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("credential must not block startup: %v", err)
	}
}

func TestApplyVaultSecrets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/ordernotify/push" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data": map[string]any{
					"public_key":  "pub-from-vault",
					"private_key": "priv-from-vault",
				},
				"metadata": map[string]any{
					"created_time":  "2024-01-01T00:00:00Z",
					"deletion_time": "",
					"destroyed":     false,
					"version":       1,
				},
			},
		})
	}))
	defer srv.Close()

	cfg := Default()
	cfg.Push.VAPIDSubject = "mailto:ops@example.com"
	cfg.Push.VaultPath = "ordernotify/push"
	cfg.Vault = VaultConfig{Enabled: true, Address: srv.URL, Token: "root", Mount: "secret"}

	vc, err := NewVaultClient(cfg.Vault)
	if err != nil {
		t.Fatalf("vault client: %v", err)
	}
	if err := ApplyVaultSecrets(context.Background(), &cfg, vc); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Push.VAPIDPublicKey != "pub-from-vault" || cfg.Push.VAPIDPrivateKey != "priv-from-vault" {
		t.Fatalf("keys not applied: %+v", cfg.Push)
	}
	if cfg.Push.VAPIDSubject != "mailto:ops@example.com" {
		t.Fatalf("missing subject must keep configured value")
	}
}

func TestNewVaultClientDisabled(t *testing.T) {
	vc, err := NewVaultClient(VaultConfig{})
	if err != nil || vc != nil {
		t.Fatalf("disabled vault should yield nil client, got %v %v", vc, err)
	}
	cfg := Default()
	if err := ApplyVaultSecrets(context.Background(), &cfg, vc); err != nil {
		t.Fatalf("nil client is a no-op: %v", err)
	}
}

func TestNewVaultClientTokenFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "token")
	if err := os.WriteFile(p, []byte("s.abc\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tok, err := VaultConfig{TokenPath: p}.token()
	if err != nil || tok != "s.abc" {
		t.Fatalf("token file: %q %v", tok, err)
	}
	if _, err := NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected missing token error")
	}
}
