// Package config loads runtime configuration for the storekit binaries from a YAML file,
// an optional .env file and STOREKIT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Platform kinds.
const (
	PlatformMemory  = "memory"
	PlatformGateway = "gateway"
)

// Ledger backends.
const (
	LedgerMemory    = "memory"
	LedgerRedis     = "redis"
	LedgerPostgres  = "postgres"
	LedgerFirestore = "firestore"
)

// Config is the full runtime configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Receipt  ReceiptConfig  `yaml:"receipt"`
	Platform PlatformConfig `yaml:"platform"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Sources  SourcesConfig  `yaml:"sources"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig sets the Prometheus namespace. Metric names are <namespace>_storekit_<name>.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

type DeliveryConfig struct {
	Buffer            int  `yaml:"buffer"`
	ReplayUndelivered bool `yaml:"replay_undelivered"`
	BacklogSize       int  `yaml:"backlog_size"`
}

type ReceiptConfig struct {
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

type PlatformConfig struct {
	Kind    string         `yaml:"kind"`
	Memory  MemoryPlatform `yaml:"memory"`
	Gateway GatewayConfig  `yaml:"gateway"`
}

// MemoryPlatform configures the in-process platform used for development.
type MemoryPlatform struct {
	Products         []ProductConfig `yaml:"products"`
	PaymentsDisabled bool            `yaml:"payments_disabled"`
	// Receipt is the receipt content served after a refresh.
	Receipt string `yaml:"receipt"`
}

type ProductConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Price       string `yaml:"price"`
}

type GatewayConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	PurchaseTimeout  time.Duration `yaml:"purchase_timeout"`
	ReceiptURL       string        `yaml:"receipt_url"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

type LedgerConfig struct {
	Backend   string          `yaml:"backend"`
	HotCache  bool            `yaml:"hot_cache"`
	TTL       time.Duration   `yaml:"ttl"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Firestore FirestoreConfig `yaml:"firestore"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PostgresConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type FirestoreConfig struct {
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

type SourcesConfig struct {
	NATS    NATSConfig    `yaml:"nats"`
	Webhook WebhookConfig `yaml:"webhook"`
}

type NATSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Subject  string `yaml:"subject"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type WebhookConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	Secret     string        `yaml:"secret"`
	AcceptHMAC bool          `yaml:"accept_hmac"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Delivery: DeliveryConfig{Buffer: 64, BacklogSize: 32},
		Receipt:  ReceiptConfig{RefreshTimeout: 30 * time.Second},
		Platform: PlatformConfig{
			Kind: PlatformMemory,
			Gateway: GatewayConfig{
				Timeout:          10 * time.Second,
				PurchaseTimeout:  5 * time.Minute,
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Ledger: LedgerConfig{
			Backend: LedgerMemory,
			TTL:     30 * 24 * time.Hour,
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "storekit:finalized:"},
			Postgres: PostgresConfig{
				Migrate: true,
			},
			Firestore: FirestoreConfig{Collection: "storekit_finalized_transactions"},
		},
		Sources: SourcesConfig{
			NATS: NATSConfig{Subject: "storekit.transactions"},
			Webhook: WebhookConfig{
				Path:       "/notifications",
				RateLimit:  100,
				RateWindow: time.Minute,
			},
		},
	}
}

// Load reads path (optional), overlays .env and the environment, then validates.
// A .env file next to path, or in the working directory when path is empty, is read when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	dotenv, err := readDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(envLookup(dotenv)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// envLookup prefers the process environment over .env values.
func envLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STOREKIT_LOG_LEVEL":            &c.Log.Level,
		"STOREKIT_METRICS_NAMESPACE":    &c.Metrics.Namespace,
		"STOREKIT_PLATFORM":             &c.Platform.Kind,
		"STOREKIT_GATEWAY_URL":          &c.Platform.Gateway.BaseURL,
		"STOREKIT_GATEWAY_API_KEY":      &c.Platform.Gateway.APIKey,
		"STOREKIT_RECEIPT_URL":          &c.Platform.Gateway.ReceiptURL,
		"STOREKIT_LEDGER":               &c.Ledger.Backend,
		"STOREKIT_REDIS_ADDR":           &c.Ledger.Redis.Addr,
		"STOREKIT_REDIS_PASSWORD":       &c.Ledger.Redis.Password,
		"STOREKIT_POSTGRES_DSN":         &c.Ledger.Postgres.DSN,
		"STOREKIT_FIRESTORE_PROJECT_ID": &c.Ledger.Firestore.ProjectID,
		"STOREKIT_NATS_URL":             &c.Sources.NATS.URL,
		"STOREKIT_NATS_SUBJECT":         &c.Sources.NATS.Subject,
		"STOREKIT_NATS_USER":            &c.Sources.NATS.User,
		"STOREKIT_NATS_PASSWORD":        &c.Sources.NATS.Password,
		"STOREKIT_WEBHOOK_SECRET":       &c.Sources.Webhook.Secret,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"STOREKIT_LOG_PRETTY":         &c.Log.Pretty,
		"STOREKIT_REPLAY_UNDELIVERED": &c.Delivery.ReplayUndelivered,
		"STOREKIT_LEDGER_HOT_CACHE":   &c.Ledger.HotCache,
		"STOREKIT_NATS_ENABLED":       &c.Sources.NATS.Enabled,
		"STOREKIT_WEBHOOK_ENABLED":    &c.Sources.Webhook.Enabled,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"STOREKIT_RECEIPT_REFRESH_TIMEOUT": &c.Receipt.RefreshTimeout,
		"STOREKIT_LEDGER_TTL":              &c.Ledger.TTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}

	if c.Delivery.Buffer < 0 || c.Delivery.BacklogSize < 0 {
		return errors.New("delivery: buffer and backlog_size must not be negative")
	}

	switch c.Platform.Kind {
	case PlatformMemory:
	case PlatformGateway:
		if c.Platform.Gateway.BaseURL == "" {
			return errors.New("platform.gateway.base_url is required")
		}
		if c.Platform.Gateway.ReceiptURL == "" {
			return errors.New("platform.gateway.receipt_url is required")
		}
	default:
		return fmt.Errorf("platform.kind: unknown platform %q", c.Platform.Kind)
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerRedis:
		if c.Ledger.Redis.Addr == "" {
			return errors.New("ledger.redis.addr is required")
		}
	case LedgerPostgres:
		if c.Ledger.Postgres.DSN == "" {
			return errors.New("ledger.postgres.dsn is required")
		}
	case LedgerFirestore:
		if c.Ledger.Firestore.ProjectID == "" {
			return errors.New("ledger.firestore.project_id is required")
		}
	default:
		return fmt.Errorf("ledger.backend: unknown backend %q", c.Ledger.Backend)
	}

	if c.Sources.NATS.Enabled && c.Sources.NATS.Subject == "" {
		return errors.New("sources.nats.subject is required when nats is enabled")
	}
	if c.Sources.Webhook.Enabled && c.Sources.Webhook.Secret == "" {
		return errors.New("sources.webhook.secret is required when the webhook is enabled")
	}
	return nil
}
