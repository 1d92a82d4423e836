package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("cryptocom")
	assert.Equal(t, "cryptocom", cfg.Venue)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.CircuitBreakerEnabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"missing venue", func(c *Config) { c.Venue = "" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"limit without window", func(c *Config) {
			c.PublicRateLimit = RateLimitConfig{Limit: 10}
		}, true},
		{"breaker without threshold", func(c *Config) {
			c.CircuitBreakerFailThreshold = 0
		}, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"breaker disabled skips thresholds", func(c *Config) {
			c.CircuitBreakerEnabled = false
			c.CircuitBreakerFailThreshold = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("mock")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Chaining(t *testing.T) {
	cfg := DefaultConfig("gemini").
		WithSandbox(true).
		WithTimeout(5 * time.Second).
		WithCredentials(&Credentials{APIKey: "key", SecretKey: "secret"}).
		WithRateLimit(ClassOrder, 5, time.Second)

	assert.True(t, cfg.Sandbox)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.Credentials)
	assert.Equal(t, "key", cfg.Credentials.APIKey)
	assert.Equal(t, 5, cfg.OrderRateLimit.Limit)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
venue: gemini
sandbox: true
timeout: 3s
credentials:
  api_key: test-key
  secret_key: test-secret
order_rate_limit:
  limit: 5
  window: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Venue)
	assert.True(t, cfg.Sandbox)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.Credentials)
	assert.Equal(t, "test-key", cfg.Credentials.APIKey)
	assert.Equal(t, 5, cfg.OrderRateLimit.Limit)
	// Unset fields keep their defaults.
	assert.Equal(t, 100, cfg.PublicRateLimit.Limit)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 3s\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err) // venue is required

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
