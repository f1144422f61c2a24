// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address of the REST API; empty disables the HTTP server.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis:// URL used for login throttling. Empty disables throttling.
	RedisURL string `mapstructure:"REDIS_URL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// SessionTTL is the device-bound session lifetime (e.g. "168h").
	SessionTTL string `mapstructure:"SESSION_TTL"`

	// LegacyTokenTTL is the lifetime of legacy single-token logins (e.g. "24h").
	LegacyTokenTTL string `mapstructure:"LEGACY_TOKEN_TTL"`
	// LegacyJWTSecret is the HMAC secret for legacy tokens. Ignored when a key pair is configured.
	LegacyJWTSecret string `mapstructure:"LEGACY_JWT_SECRET"`
	// LegacyJWTPrivateKey is an optional PEM private key (or path) for RS256/ES256 legacy tokens.
	LegacyJWTPrivateKey string `mapstructure:"LEGACY_JWT_PRIVATE_KEY"`
	// LegacyJWTPublicKey is the PEM public key (or path) matching LegacyJWTPrivateKey.
	LegacyJWTPublicKey string `mapstructure:"LEGACY_JWT_PUBLIC_KEY"`
	// LegacyLoginEnabled is fed to the login policy; false rejects legacy logins.
	LegacyLoginEnabled bool `mapstructure:"LEGACY_LOGIN_ENABLED"`
	// LegacyCleanupInterval is how often cmd/worker deletes expired legacy tokens.
	LegacyCleanupInterval string `mapstructure:"LEGACY_CLEANUP_INTERVAL"`

	// LoginPolicyFile is an optional path to a Rego module overriding the default login policy.
	LoginPolicyFile string `mapstructure:"LOGIN_POLICY_FILE"`
	// LoginRateLimitMax is the number of login attempts per identifier or IP per window.
	LoginRateLimitMax int `mapstructure:"LOGIN_RATE_LIMIT_MAX"`
	// LoginRateLimitWindow is the throttling window (e.g. "15m").
	LoginRateLimitWindow string `mapstructure:"LOGIN_RATE_LIMIT_WINDOW"`

	// CORSAllowedOrigins is a comma-separated list of origins allowed by the REST API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose
	// X-Forwarded-For and X-Real-IP headers are honoured. Empty trusts none.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Telemetry (optional). When Kafka brokers are set, the gRPC server emits request telemetry to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group cmd/worker joins to read telemetry.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("LEGACY_TOKEN_TTL", "24h")
	v.SetDefault("LEGACY_JWT_SECRET", "")
	v.SetDefault("LEGACY_JWT_PRIVATE_KEY", "")
	v.SetDefault("LEGACY_JWT_PUBLIC_KEY", "")
	v.SetDefault("LEGACY_LOGIN_ENABLED", true)
	v.SetDefault("LEGACY_CLEANUP_INTERVAL", "1h")
	v.SetDefault("LOGIN_POLICY_FILE", "")
	v.SetDefault("LOGIN_RATE_LIMIT_MAX", 10)
	v.SetDefault("LOGIN_RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "devauth-telemetry")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_ID", "devauth-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	hasKeyPair := cfg.LegacyJWTPrivateKey != "" || cfg.LegacyJWTPublicKey != ""
	if hasKeyPair && (cfg.LegacyJWTPrivateKey == "" || cfg.LegacyJWTPublicKey == "") {
		return nil, errors.New("config: LEGACY_JWT_PRIVATE_KEY and LEGACY_JWT_PUBLIC_KEY must be set together")
	}
	if cfg.Env == "production" && cfg.LegacyLoginEnabled && !hasKeyPair && len(cfg.LegacyJWTSecret) < 32 {
		return nil, errors.New("config: LEGACY_JWT_SECRET must be at least 32 bytes when APP_ENV=production")
	}

	if cfg.LoginRateLimitMax < 0 {
		return nil, errors.New("config: LOGIN_RATE_LIMIT_MAX must not be negative")
	}

	return &cfg, nil
}

// SessionLifetime parses SessionTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseDurationOr(c.SessionTTL, 168*time.Hour)
}

// LegacyTokenLifetime parses LegacyTokenTTL. Returns 24h if unset or invalid.
func (c *Config) LegacyTokenLifetime() time.Duration {
	return parseDurationOr(c.LegacyTokenTTL, 24*time.Hour)
}

// LegacyCleanupEvery parses LegacyCleanupInterval. Returns 1h if unset or invalid.
func (c *Config) LegacyCleanupEvery() time.Duration {
	return parseDurationOr(c.LegacyCleanupInterval, time.Hour)
}

// LoginRateWindow parses LoginRateLimitWindow. Returns 15m if unset or invalid.
func (c *Config) LoginRateWindow() time.Duration {
	return parseDurationOr(c.LoginRateLimitWindow, 15*time.Minute)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// CORSOrigins returns the configured CORS origins, or nil when none are set.
func (c *Config) CORSOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList returns the configured proxy entries, or nil when none are set.
func (c *Config) TrustedProxyList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
