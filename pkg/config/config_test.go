package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Signal.PingInterval)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
signal:
  ping_interval: 10s
  pong_timeout: 25s
logging:
  level: "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 25*time.Second, cfg.Signal.PongTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, int64(64*1024), cfg.Signal.MaxMessageSizeBytes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROOMCAST_SERVER_ADDRESS", ":7070")
	t.Setenv("ROOMCAST_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "empty address",
			mutate: func(c *Config) { c.Server.Address = "" },
			errMsg: "server.address",
		},
		{
			name:   "pong timeout not greater than ping interval",
			mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval },
			errMsg: "pong_timeout",
		},
		{
			name:   "zero max message size",
			mutate: func(c *Config) { c.Signal.MaxMessageSizeBytes = 0 },
			errMsg: "max_message_size_bytes",
		},
		{
			name: "auth enabled without secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = ""
			},
			errMsg: "jwt_secret",
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
			errMsg: "redis.address",
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
			errMsg: "sample_rate",
		},
		{
			name: "rate limiting enabled with zero burst",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.Burst = 0
			},
			errMsg: "burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
