package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GW_AUTH_DISABLED", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":3002", cfg.Addr)
	assert.Equal(t, []string{"/healthz", "/metrics"}, cfg.PublicPaths)
	assert.Equal(t, int64(100), cfg.RateLimitQuota)
	assert.Equal(t, 60, cfg.RateLimitWindow)
	assert.Equal(t, KeyModeAddress, cfg.RateLimitKeyBy)
	assert.Equal(t, 5000, cfg.MaxConnections)
	assert.Equal(t, 64, cfg.QueueCapacity)
	assert.Equal(t, 256, cfg.MaxGroupMembers)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.DrainTimeout)
	assert.True(t, cfg.RequestIDEnabled)
	assert.Equal(t, DefaultSecurityHeaders(), cfg.SecurityHeaders)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GW_AUTH_DISABLED", "true")
	t.Setenv("GW_ADDR", ":9000")
	t.Setenv("GW_RATE_LIMIT_QUOTA", "7")
	t.Setenv("GW_RATE_LIMIT_WINDOW_SEC", "30")
	t.Setenv("GW_RATE_LIMIT_KEY_BY", "path")
	t.Setenv("GW_PUBLIC_PATHS", "/status")
	t.Setenv("GW_HEARTBEAT_INTERVAL", "5s")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, int64(7), cfg.RateLimitQuota)
	assert.Equal(t, 30*time.Second, cfg.Window())
	assert.Equal(t, KeyModePath, cfg.RateLimitKeyBy)
	assert.Equal(t, []string{"/status"}, cfg.PublicPaths)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
}

func TestLoad_SecretRequiredWhenAuthEnabled(t *testing.T) {
	t.Setenv("GW_AUTH_DISABLED", "false")
	t.Setenv("GW_JWT_SECRET", "")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GW_JWT_SECRET")
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Addr:              ":3002",
			AuthDisabled:      true,
			RateLimitQuota:    100,
			RateLimitWindow:   60,
			RateLimitKeyBy:    KeyModeAddress,
			QueueCapacity:     64,
			MaxGroupMembers:   256,
			MaxConnections:    5000,
			HeartbeatInterval: 30 * time.Second,
			LogLevel:          "info",
			LogFormat:         "json",
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }, "GW_ADDR"},
		{"zero quota", func(c *Config) { c.RateLimitQuota = 0 }, "GW_RATE_LIMIT_QUOTA"},
		{"zero window", func(c *Config) { c.RateLimitWindow = 0 }, "GW_RATE_LIMIT_WINDOW_SEC"},
		{"bad key mode", func(c *Config) { c.RateLimitKeyBy = "user" }, "GW_RATE_LIMIT_KEY_BY"},
		{"zero queue", func(c *Config) { c.QueueCapacity = 0 }, "GW_QUEUE_CAPACITY"},
		{"zero group cap", func(c *Config) { c.MaxGroupMembers = 0 }, "GW_MAX_GROUP_MEMBERS"},
		{"zero max conns", func(c *Config) { c.MaxConnections = 0 }, "GW_MAX_CONNECTIONS"},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, "GW_HEARTBEAT_INTERVAL"},
		{"cpu out of range", func(c *Config) { c.CPURejectThreshold = 120 }, "GW_CPU_REJECT_THRESHOLD"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestPublicPathSet(t *testing.T) {
	cfg := &Config{PublicPaths: []string{"/healthz", " /metrics ", ""}}
	set := cfg.PublicPathSet()
	assert.Len(t, set, 2)
	assert.Contains(t, set, "/healthz")
	assert.Contains(t, set, "/metrics")
}
