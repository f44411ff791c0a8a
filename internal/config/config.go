package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Risk       RiskConfig       `yaml:"risk"`
	Reputation ReputationConfig `yaml:"reputation"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings for the snapshot cache and
// review locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds Google OAuth authentication configuration for the
// admin dashboard.
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
	// Roles maps user email -> platform role (owner/admin/editor/viewer).
	// Users absent from the map get DefaultRole.
	Roles       map[string]string `yaml:"roles"`
	DefaultRole string            `yaml:"default_role"`
}

// RiskConfig holds the risk scorer weight table and quarantine settings.
// Weights are configuration, not code, so scoring can be tuned without a
// redeploy.
type RiskConfig struct {
	// Weights maps flag name -> score contribution. Missing flags contribute 0.
	Weights map[string]int `yaml:"weights"`
	// QuarantineThreshold is the minimum score that sends a new contact to the
	// review queue instead of subscribing it directly.
	QuarantineThreshold int `yaml:"quarantine_threshold"`
	// LookupTimeoutMS bounds the disposable-domain / MX lookup.
	LookupTimeoutMS int `yaml:"lookup_timeout_ms"`
	// BulkVelocityPerMinute is the signup rate above which bulk-import
	// velocity is flagged.
	BulkVelocityPerMinute int `yaml:"bulk_velocity_per_minute"`
	// ExtraDisposableDomains extends the built-in throwaway-provider set.
	ExtraDisposableDomains []string `yaml:"extra_disposable_domains"`
}

// LookupTimeout returns the configured lookup timeout as a duration.
func (c RiskConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMS) * time.Millisecond
}

// ReputationConfig holds the sending-reputation threshold table. The values
// mirror the upstream mail provider's suspension policy.
type ReputationConfig struct {
	WindowDays            int     `yaml:"window_days"`
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	BounceRateSuspend     float64 `yaml:"bounce_rate_suspend"`
	ComplaintRateSuspend  float64 `yaml:"complaint_rate_suspend"`
	BounceRateWarning     float64 `yaml:"bounce_rate_warning"`
	ComplaintRateWarning  float64 `yaml:"complaint_rate_warning"`
	BounceRateGood        float64 `yaml:"bounce_rate_good"`
	ComplaintRateGood     float64 `yaml:"complaint_rate_good"`
	EngagementRateMinimum float64 `yaml:"engagement_rate_minimum"`
}

// CacheTTL returns the snapshot cache TTL as a duration.
func (c ReputationConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RetentionConfig holds data retention windows used by the admin cleanup tools.
type RetentionConfig struct {
	DeliveryEventDays int `yaml:"delivery_event_days"`
	RejectedFanDays   int `yaml:"rejected_fan_days"`
}

// DefaultRiskWeights is the shipped weight table. Used when the config file
// omits the risk.weights section. Values are tuning placeholders pending
// product input; single benign flags stay below the quarantine threshold
// while syntax/disposable combinations cross it.
func DefaultRiskWeights() map[string]int {
	return map[string]int{
		"invalid_syntax":         45,
		"disposable_domain":      40,
		"no_mx_records":          35,
		"role_account":           15,
		"bulk_import_velocity":   25,
		"suspicious_tld":         20,
		"duplicate_signup_burst": 20,
		"domain_lookup_unknown":  10,
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "loopletter_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400
	}
	if cfg.Auth.DefaultRole == "" {
		cfg.Auth.DefaultRole = "viewer"
	}
	if len(cfg.Risk.Weights) == 0 {
		cfg.Risk.Weights = DefaultRiskWeights()
	}
	if cfg.Risk.QuarantineThreshold == 0 {
		cfg.Risk.QuarantineThreshold = 34
	}
	if cfg.Risk.LookupTimeoutMS == 0 {
		cfg.Risk.LookupTimeoutMS = 2000
	}
	if cfg.Risk.BulkVelocityPerMinute == 0 {
		cfg.Risk.BulkVelocityPerMinute = 100
	}
	if cfg.Reputation.WindowDays == 0 {
		cfg.Reputation.WindowDays = 30
	}
	if cfg.Reputation.CacheTTLSeconds == 0 {
		cfg.Reputation.CacheTTLSeconds = 300
	}
	if cfg.Reputation.BounceRateSuspend == 0 {
		cfg.Reputation.BounceRateSuspend = 5.0
	}
	if cfg.Reputation.ComplaintRateSuspend == 0 {
		cfg.Reputation.ComplaintRateSuspend = 0.1
	}
	if cfg.Reputation.BounceRateWarning == 0 {
		cfg.Reputation.BounceRateWarning = 3.0
	}
	if cfg.Reputation.ComplaintRateWarning == 0 {
		cfg.Reputation.ComplaintRateWarning = 0.05
	}
	if cfg.Reputation.BounceRateGood == 0 {
		cfg.Reputation.BounceRateGood = 1.0
	}
	if cfg.Reputation.ComplaintRateGood == 0 {
		cfg.Reputation.ComplaintRateGood = 0.02
	}
	if cfg.Reputation.EngagementRateMinimum == 0 {
		cfg.Reputation.EngagementRateMinimum = 5.0
	}
	if cfg.Retention.DeliveryEventDays == 0 {
		cfg.Retention.DeliveryEventDays = 90
	}
	if cfg.Retention.RejectedFanDays == 0 {
		cfg.Retention.RejectedFanDays = 30
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}

	return cfg, nil
}
