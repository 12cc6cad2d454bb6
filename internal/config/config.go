package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/ordernotify/internal/credential"
)

// Storage drivers.
const (
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
)

// Change detection strategies.
const (
	StrategyPoll   = "poll"
	StrategyNotify = "notify"
)

// Broadcast drivers used by the notify strategy.
const (
	BroadcastLocal    = "local"
	BroadcastPostgres = "postgres"
	BroadcastNATS     = "nats"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Detector  DetectorConfig  `json:"detector" yaml:"detector"`
	Broadcast BroadcastConfig `json:"broadcast" yaml:"broadcast"`
	Stream    StreamConfig    `json:"stream" yaml:"stream"`
	Push      PushConfig      `json:"push" yaml:"push"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Vault     VaultConfig     `json:"vault" yaml:"vault"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr" envconfig:"HTTP_ADDR"`
	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr" envconfig:"GRPC_ADDR"`
}

// StorageConfig selects and configures the storage driver.
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver" envconfig:"DRIVER"`
	DataDir     string `json:"dataDir" yaml:"dataDir" envconfig:"DATA_DIR"`
	Fsync       string `json:"fsync" yaml:"fsync" envconfig:"FSYNC"` // always|interval|never
	PostgresURL string `json:"postgresUrl" yaml:"postgresUrl" envconfig:"POSTGRES_URL"`
}

// DetectorConfig selects the change detection strategy.
type DetectorConfig struct {
	Strategy     string        `json:"strategy" yaml:"strategy" envconfig:"STRATEGY"`
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval" envconfig:"POLL_INTERVAL"`
	PollLimit    int           `json:"pollLimit" yaml:"pollLimit" envconfig:"POLL_LIMIT"`
}

// BroadcastConfig selects where tenant broadcast channels live.
type BroadcastConfig struct {
	Driver  string `json:"driver" yaml:"driver" envconfig:"DRIVER"`
	NATSURL string `json:"natsUrl" yaml:"natsUrl" envconfig:"NATS_URL"`
	// Buffer is the per-subscription channel capacity.
	Buffer int `json:"buffer" yaml:"buffer" envconfig:"BUFFER"`
}

// StreamConfig tunes stream sessions.
type StreamConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeatInterval" yaml:"heartbeatInterval" envconfig:"HEARTBEAT_INTERVAL"`
}

// PushConfig carries the signing credential and delivery tunables.
type PushConfig struct {
	VAPIDPublicKey  string        `json:"vapidPublicKey" yaml:"vapidPublicKey" envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `json:"vapidPrivateKey" yaml:"vapidPrivateKey" envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string        `json:"vapidSubject" yaml:"vapidSubject" envconfig:"VAPID_SUBJECT"`
	TTL             time.Duration `json:"ttl" yaml:"ttl" envconfig:"TTL"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
	NotifyOnCreate  bool          `json:"notifyOnCreate" yaml:"notifyOnCreate" envconfig:"NOTIFY_ON_CREATE"`
	// VaultPath, when set and Vault is enabled, overrides the three VAPID
	// values with the secret's public_key/private_key/subject entries.
	VaultPath string `json:"vaultPath" yaml:"vaultPath" envconfig:"VAULT_PATH"`
}

// Credential returns the raw signing credential values.
func (p PushConfig) Credential() credential.Values {
	return credential.Values{PublicKey: p.VAPIDPublicKey, PrivateKey: p.VAPIDPrivateKey, Subject: p.VAPIDSubject}
}

// RetryConfig bounds local retries of transient storage errors.
type RetryConfig struct {
	Attempts int           `json:"attempts" yaml:"attempts" envconfig:"ATTEMPTS"`
	Base     time.Duration `json:"base" yaml:"base" envconfig:"BASE"`
}

// VaultConfig represents HashiCorp Vault configuration.
type VaultConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" envconfig:"ENABLED"`
	Address   string `json:"address" yaml:"address" envconfig:"ADDRESS"`
	Token     string `json:"token" yaml:"token" envconfig:"TOKEN"`
	TokenPath string `json:"tokenPath" yaml:"tokenPath" envconfig:"TOKEN_PATH"`
	Namespace string `json:"namespace" yaml:"namespace" envconfig:"NAMESPACE"`
	Mount     string `json:"mount" yaml:"mount" envconfig:"MOUNT"`
}

// LogConfig mirrors pkg/log.Config for the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" envconfig:"LEVEL"`
	Format string `json:"format" yaml:"format" envconfig:"FORMAT"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
		Storage: StorageConfig{
			Driver: DriverPebble,
			Fsync:  "always",
		},
		Detector: DetectorConfig{
			Strategy:     StrategyPoll,
			PollInterval: 3 * time.Second,
			PollLimit:    100,
		},
		Broadcast: BroadcastConfig{
			Driver: BroadcastLocal,
			Buffer: 64,
		},
		Stream: StreamConfig{
			HeartbeatInterval: 30 * time.Second,
		},
		Push: PushConfig{
			TTL:            24 * time.Hour,
			Timeout:        10 * time.Second,
			NotifyOnCreate: true,
		},
		Retry: RetryConfig{
			Attempts: 2,
			Base:     500 * time.Millisecond,
		},
		Vault: VaultConfig{
			Address: "http://127.0.0.1:8200",
			Mount:   "secret",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks structural settings. Credential values are deliberately not
// validated here: a malformed signing credential disables push delivery but
// must not prevent the process from serving streams.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverPebble:
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgresUrl is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.Storage.Fsync {
	case "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.fsync %q", c.Storage.Fsync))
	}
	switch c.Detector.Strategy {
	case StrategyPoll:
		if c.Detector.PollInterval <= 0 {
			errs = append(errs, errors.New("detector.pollInterval must be positive"))
		}
	case StrategyNotify:
	default:
		errs = append(errs, fmt.Errorf("unknown detector.strategy %q", c.Detector.Strategy))
	}
	switch c.Broadcast.Driver {
	case BroadcastLocal:
	case BroadcastPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("broadcast.driver=postgres requires storage.postgresUrl"))
		}
	case BroadcastNATS:
		if c.Broadcast.NATSURL == "" {
			errs = append(errs, errors.New("broadcast.natsUrl is required for the nats driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown broadcast.driver %q", c.Broadcast.Driver))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("stream.heartbeatInterval must be positive"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		errs = append(errs, errors.New("vault.address is required when vault is enabled"))
	}
	return errors.Join(errs...)
}
