package core

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Credentials holds API authentication credentials for a venue.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key" yaml:"api_key"`
	// SecretKey is the private key used for signing requests.
	SecretKey string `json:"secret_key" yaml:"secret_key"`
}

// RateLimitConfig holds sliding-window admission parameters for one request
// class.
type RateLimitConfig struct {
	// Limit is the number of requests admitted per window.
	Limit int `json:"limit" yaml:"limit"`
	// Window is the trailing interval over which requests are counted.
	Window time.Duration `json:"window" yaml:"window"`
}

// Config contains all construction-time options for a venue adapter.
type Config struct {
	// Venue is the adapter identifier ("cryptocom", "gemini", "mock").
	Venue string `json:"venue" yaml:"venue" validate:"required"`
	// Sandbox selects the venue's test environment when available.
	Sandbox bool `json:"sandbox" yaml:"sandbox"`
	// TestMode disables order submission side effects where the venue
	// offers a paper-trading flag.
	TestMode bool `json:"test_mode" yaml:"test_mode"`
	// Credentials authenticate private operations. Optional for market data.
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"min=1ms"`

	// PublicRateLimit bounds unauthenticated market data requests.
	PublicRateLimit RateLimitConfig `json:"public_rate_limit" yaml:"public_rate_limit"`
	// PrivateRateLimit bounds authenticated account requests.
	PrivateRateLimit RateLimitConfig `json:"private_rate_limit" yaml:"private_rate_limit"`
	// OrderRateLimit bounds order placement and cancellation.
	OrderRateLimit RateLimitConfig `json:"order_rate_limit" yaml:"order_rate_limit"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold" yaml:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold" yaml:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with sensible defaults for the
// specified venue: 10s timeout, conservative per-class rate limits, and the
// circuit breaker enabled with 5 failures/2 successes/30s timeout.
func DefaultConfig(venue string) *Config {
	return &Config{
		Venue:   venue,
		Sandbox: false,
		Timeout: 10 * time.Second,

		PublicRateLimit:  RateLimitConfig{Limit: 100, Window: time.Second},
		PrivateRateLimit: RateLimitConfig{Limit: 15, Window: 100 * time.Millisecond},
		OrderRateLimit:   RateLimitConfig{Limit: 15, Window: 100 * time.Millisecond},

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

// LoadConfig reads a Config from a YAML file and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, rl := range []RateLimitConfig{c.PublicRateLimit, c.PrivateRateLimit, c.OrderRateLimit} {
		if rl.Limit > 0 && rl.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive when limit is set")
		}
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return fmt.Errorf("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return fmt.Errorf("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return fmt.Errorf("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithSandbox enables or disables sandbox mode and returns the config for chaining.
func (c *Config) WithSandbox(sandbox bool) *Config {
	c.Sandbox = sandbox
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRateLimit sets the admission parameters for one request class and
// returns the config for chaining.
func (c *Config) WithRateLimit(class RequestClass, limit int, window time.Duration) *Config {
	rl := RateLimitConfig{Limit: limit, Window: window}
	switch class {
	case ClassPublic:
		c.PublicRateLimit = rl
	case ClassPrivate:
		c.PrivateRateLimit = rl
	case ClassOrder:
		c.OrderRateLimit = rl
	}
	return c
}
