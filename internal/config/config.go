// Package config loads gateway configuration from the environment, with an
// optional .env file for local development. Priority: ENV vars > .env > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Rate-limit key derivation modes.
const (
	KeyModeAddress = "address"
	KeyModePath    = "path"
)

// Config holds all gateway configuration.
//
// Tags:
//
//	env:        environment variable name
//	envDefault: default value if not set
type Config struct {
	// Server basics
	Addr        string `env:"GW_ADDR" envDefault:":3002"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Request gate
	PublicPaths     []string `env:"GW_PUBLIC_PATHS" envSeparator:"," envDefault:"/healthz,/metrics"`
	JWTSecret       string   `env:"GW_JWT_SECRET"`
	AuthDisabled    bool     `env:"GW_AUTH_DISABLED" envDefault:"false"`
	RateLimitQuota  int64    `env:"GW_RATE_LIMIT_QUOTA" envDefault:"100"`
	RateLimitWindow int      `env:"GW_RATE_LIMIT_WINDOW_SEC" envDefault:"60"`
	RateLimitKeyBy  string   `env:"GW_RATE_LIMIT_KEY_BY" envDefault:"address"`

	// Optional Redis backend for the rate-limit store. Empty = in-memory.
	RedisAddr string `env:"GW_REDIS_ADDR"`

	// Response headers
	RequestIDEnabled bool              `env:"GW_REQUEST_ID_ENABLED" envDefault:"true"`
	SecurityHeaders  map[string]string `env:"GW_SECURITY_HEADERS" envSeparator:","`

	// Connection manager
	MaxConnections    int           `env:"GW_MAX_CONNECTIONS" envDefault:"5000"`
	QueueCapacity     int           `env:"GW_QUEUE_CAPACITY" envDefault:"64"`
	SendBuffer        int           `env:"GW_SEND_BUFFER" envDefault:"256"`
	MaxGroupMembers   int           `env:"GW_MAX_GROUP_MEMBERS" envDefault:"256"`
	HeartbeatInterval time.Duration `env:"GW_HEARTBEAT_INTERVAL" envDefault:"30s"`
	DrainTimeout      time.Duration `env:"GW_DRAIN_TIMEOUT" envDefault:"5s"`

	// Per-connection inbound flood guard (token bucket)
	InboundMsgRate  float64 `env:"GW_INBOUND_MSG_RATE" envDefault:"10"`
	InboundMsgBurst int     `env:"GW_INBOUND_MSG_BURST" envDefault:"100"`

	// Admission control
	CPURejectThreshold float64 `env:"GW_CPU_REJECT_THRESHOLD" envDefault:"85.0"`

	// Upstream feed (optional, off when empty)
	NATSURL         string `env:"GW_NATS_URL"`
	FeedSubjectRoot string `env:"GW_FEED_SUBJECT_ROOT" envDefault:"gateway.feed"`

	// HTTP timeouts
	HTTPReadTimeout  time.Duration `env:"GW_HTTP_READ_TIMEOUT" envDefault:"10s"`
	HTTPWriteTimeout time.Duration `env:"GW_HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	HTTPIdleTimeout  time.Duration `env:"GW_HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// DefaultSecurityHeaders is applied when GW_SECURITY_HEADERS is not set.
func DefaultSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
}

// Load reads configuration from a .env file and environment variables.
// The logger may be nil during early startup.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.SecurityHeaders) == 0 {
		cfg.SecurityHeaders = DefaultSecurityHeaders()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("GW_ADDR is required")
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		return fmt.Errorf("GW_JWT_SECRET is required unless GW_AUTH_DISABLED=true")
	}
	if c.RateLimitQuota < 1 {
		return fmt.Errorf("GW_RATE_LIMIT_QUOTA must be > 0, got %d", c.RateLimitQuota)
	}
	if c.RateLimitWindow < 1 {
		return fmt.Errorf("GW_RATE_LIMIT_WINDOW_SEC must be > 0, got %d", c.RateLimitWindow)
	}
	if c.RateLimitKeyBy != KeyModeAddress && c.RateLimitKeyBy != KeyModePath {
		return fmt.Errorf("GW_RATE_LIMIT_KEY_BY must be one of: address, path (got: %s)", c.RateLimitKeyBy)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("GW_QUEUE_CAPACITY must be > 0, got %d", c.QueueCapacity)
	}
	if c.MaxGroupMembers < 1 {
		return fmt.Errorf("GW_MAX_GROUP_MEMBERS must be > 0, got %d", c.MaxGroupMembers)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("GW_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("GW_HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("GW_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// Window returns the rate-limit window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}

// PublicPathSet returns the public paths as a lookup set.
func (c *Config) PublicPathSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.PublicPaths))
	for _, p := range c.PublicPaths {
		p = strings.TrimSpace(p)
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

// LogConfig logs the effective configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Strs("public_paths", c.PublicPaths).
		Bool("auth_disabled", c.AuthDisabled).
		Int64("rate_limit_quota", c.RateLimitQuota).
		Int("rate_limit_window_sec", c.RateLimitWindow).
		Str("rate_limit_key_by", c.RateLimitKeyBy).
		Bool("redis_store", c.RedisAddr != "").
		Bool("request_id_enabled", c.RequestIDEnabled).
		Int("max_connections", c.MaxConnections).
		Int("queue_capacity", c.QueueCapacity).
		Int("max_group_members", c.MaxGroupMembers).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Dur("drain_timeout", c.DrainTimeout).
		Bool("feed_enabled", c.NATSURL != "").
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Gateway configuration loaded")
}
