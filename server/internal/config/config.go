package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/senseease/senseease/server/internal/pricing"
	"github.com/senseease/senseease/server/internal/stress"
)

// AlertsConfig holds calming-mode rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based condition evaluated against a
// session's stress state.
type AlertRule struct {
	// Name is the human-readable rule identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "score >= 80", "event_count > 12",
	// "level == high".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after a rule fires.
	// Defaults to 5 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultGRPCPort       = 50051
	DefaultHTTPPort       = 8080
	DefaultStateTTL       = 24 * time.Hour
	DefaultStreamInterval = 5 * time.Second
	DefaultRatePerSecond  = 20.0
	DefaultRateBurst      = 40
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultPruneSchedule  = "0 0 3 * * *"
	DefaultCalmingRule    = "score >= 80"
)

// Config holds the server configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC health service listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Log controls the structured logger.
	Log LogConfig `yaml:"log"`

	// Auth configures how the server authenticates incoming gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit bounds the request rate per client address.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// State controls in-memory cart and session retention.
	State StateConfig `yaml:"state"`

	// Pricing holds the tax and shipping policy.
	Pricing PricingConfig `yaml:"pricing"`

	// Stress tunes the stress heuristic and the live stream.
	Stress StressConfig `yaml:"stress"`

	// Alerts holds calming-mode rules and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// Storage configures optional persistence.
	Storage StorageConfig `yaml:"storage"`
}

// LogConfig controls the slog handler installed at start-up.
type LogConfig struct {
	// Level is one of: debug | info | warn | error (default info).
	Level string `yaml:"level"`
}

// SlogLevel returns the configured level as a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size.
	Burst int `yaml:"burst"`
}

// StateConfig controls in-memory retention.
type StateConfig struct {
	// TTL is how long an untouched cart or session stays in memory.
	// Default: 24h.
	TTL time.Duration `yaml:"ttl"`
}

// PricingConfig holds the pricing policy as decimal strings.
type PricingConfig struct {
	TaxRate               string `yaml:"tax_rate"`
	FreeShippingThreshold string `yaml:"free_shipping_threshold"`
	FlatShipping          string `yaml:"flat_shipping"`
}

// Policy parses the configured values into a pricing.Policy.
func (p PricingConfig) Policy() (pricing.Policy, error) {
	var (
		out pricing.Policy
		err error
	)
	if out.TaxRate, err = decimal.NewFromString(p.TaxRate); err != nil {
		return out, fmt.Errorf("tax_rate %q: %w", p.TaxRate, err)
	}
	if out.FreeShippingThreshold, err = decimal.NewFromString(p.FreeShippingThreshold); err != nil {
		return out, fmt.Errorf("free_shipping_threshold %q: %w", p.FreeShippingThreshold, err)
	}
	if out.FlatShipping, err = decimal.NewFromString(p.FlatShipping); err != nil {
		return out, fmt.Errorf("flat_shipping %q: %w", p.FlatShipping, err)
	}
	return out, nil
}

// MustPolicy is Policy for configs that already passed validation.
func (p PricingConfig) MustPolicy() pricing.Policy {
	pol, err := p.Policy()
	if err != nil {
		panic(err)
	}
	return pol
}

// StressConfig tunes the stress heuristic.
type StressConfig struct {
	// Window is how far back events are scored (default 60s).
	Window time.Duration `yaml:"window"`

	// LogCapacity is the number of events retained per session (default 200).
	LogCapacity int `yaml:"log_capacity"`

	// MediumThreshold and HighThreshold are the level boundaries (default 40/70).
	MediumThreshold float64 `yaml:"medium_threshold"`
	HighThreshold   float64 `yaml:"high_threshold"`

	// StreamInterval is how often the WebSocket hub pushes fresh state (default 5s).
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// Scorer returns the stress.Scorer described by c.
func (c StressConfig) Scorer() stress.Scorer {
	return stress.Scorer{
		Window:          c.Window,
		MediumThreshold: c.MediumThreshold,
		HighThreshold:   c.HighThreshold,
	}
}

// StorageConfig configures the persistence backend.
type StorageConfig struct {
	// Backend selects the storage implementation: memory | sqlite.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long persisted interaction events are kept.
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron spec (with seconds) for retention pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if len(cfg.Server.Alerts.Rules) == 0 {
		cfg.Server.Alerts.Rules = []AlertRule{defaultCalmingRule()}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Log:      LogConfig{Level: "info"},
			Auth:     AuthConfig{Mode: "none"},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: DefaultRatePerSecond,
				Burst:             DefaultRateBurst,
			},
			State: StateConfig{TTL: DefaultStateTTL},
			Pricing: PricingConfig{
				TaxRate:               "0.085",
				FreeShippingThreshold: "35.00",
				FlatShipping:          "5.99",
			},
			Stress: StressConfig{
				Window:          stress.DefaultWindow,
				LogCapacity:     stress.DefaultLogCapacity,
				MediumThreshold: stress.DefaultMediumThreshold,
				HighThreshold:   stress.DefaultHighThreshold,
				StreamInterval:  DefaultStreamInterval,
			},
			Storage: StorageConfig{
				Backend:       "memory",
				Retention:     DefaultRetention,
				PruneSchedule: DefaultPruneSchedule,
			},
		},
	}
}

func defaultCalmingRule() AlertRule {
	return AlertRule{
		Name:      "calming_mode",
		Condition: DefaultCalmingRule,
		Severity:  "warning",
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must not be negative")
	}
	if s.RateLimit.RequestsPerSecond > 0 && s.RateLimit.Burst <= 0 {
		return fmt.Errorf("server.rate_limit.burst must be positive when limiting is enabled")
	}
	if s.State.TTL <= 0 {
		return fmt.Errorf("server.state.ttl must be positive")
	}

	pol, err := s.Pricing.Policy()
	if err != nil {
		return fmt.Errorf("server.pricing.%w", err)
	}
	if pol.TaxRate.IsNegative() || pol.FreeShippingThreshold.IsNegative() || pol.FlatShipping.IsNegative() {
		return fmt.Errorf("server.pricing values must not be negative")
	}

	if s.Stress.Window <= 0 {
		return fmt.Errorf("server.stress.window must be positive")
	}
	if s.Stress.LogCapacity <= 0 {
		return fmt.Errorf("server.stress.log_capacity must be positive")
	}
	if s.Stress.MediumThreshold > s.Stress.HighThreshold {
		return fmt.Errorf("server.stress.medium_threshold %.1f exceeds high_threshold %.1f",
			s.Stress.MediumThreshold, s.Stress.HighThreshold)
	}
	if s.Stress.StreamInterval <= 0 {
		return fmt.Errorf("server.stress.stream_interval must be positive")
	}

	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}

	switch s.Storage.Backend {
	case "memory", "":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite", s.Storage.Backend)
	}
	if s.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	return nil
}
