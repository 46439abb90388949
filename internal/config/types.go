package config

import "time"

// Config represents the complete docscribe configuration.
type Config struct {
	Service  ServiceConfig     `yaml:"service"`
	State    StateConfig       `yaml:"state"`
	API      APIConfig         `yaml:"api"`
	Webhooks WebhooksConfig    `yaml:"webhooks"`
	Tokens   map[string]string `yaml:"tokens,omitempty"`
	Metrics  MetricsConfig     `yaml:"metrics"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TickInterval paces the queue maintenance loop.
	TickInterval time.Duration `yaml:"tick_interval"`
	// JobLease is how long a claimed job may stay running before it is
	// requeued.
	JobLease time.Duration `yaml:"job_lease"`
	// JobLogRetention prunes job_log rows older than this.
	JobLogRetention time.Duration `yaml:"job_log_retention"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token" json:"token"`
	Scopes []string `yaml:"scopes" json:"scopes"`
}

// WebhooksConfig defines webhook ingress settings.
type WebhooksConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sources   []WebhookSource `yaml:"sources"`
}

// RateLimitConfig is a per-client token bucket. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Webhook source types.
const (
	SourceGitHub = "github"
	SourceSlack  = "slack"
	SourceHMAC   = "hmac"
)

// WebhookSource defines a single webhook source served at /webhooks/{name}.
type WebhookSource struct {
	Name string `yaml:"name"`
	// Type is one of github, slack or hmac.
	Type string `yaml:"type"`

	// Secret is the signing secret. SecretRef names an entry in tokens and
	// takes precedence.
	Secret    string `yaml:"secret,omitempty"`
	SecretRef string `yaml:"secret_ref,omitempty"`

	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix (default 1MB).
	MaxBodySize string `yaml:"max_body_size,omitempty"`

	// hmac sources only.
	SignatureHeader string `yaml:"signature_header,omitempty"`
	EventHeader     string `yaml:"event_header,omitempty"`
	DeliveryHeader  string `yaml:"delivery_header,omitempty"`
	Kind            string `yaml:"kind,omitempty"`

	// github sources only.
	Branches []string `yaml:"branches,omitempty"`

	// slack sources only.
	Tolerance time.Duration `yaml:"tolerance,omitempty"`
}

// MetricsConfig controls the metrics endpoints.
type MetricsConfig struct {
	// Prometheus exposes /metrics/prometheus. Defaults to true.
	Prometheus *bool `yaml:"prometheus,omitempty"`
}

// PrometheusEnabled reports whether the Prometheus endpoint is served.
func (m MetricsConfig) PrometheusEnabled() bool {
	return m.Prometheus == nil || *m.Prometheus
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "docscribe",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 5 * time.Second,
			TickInterval:    time.Minute,
			JobLease:        30 * time.Minute,
			JobLogRetention: 30 * 24 * time.Hour,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8080",
		},
		Tokens: make(map[string]string),
	}
}
