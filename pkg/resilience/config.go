package resilience

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds retry and circuit breaker settings for one outbound dependency.
type Config struct {
	MaxAttempts    int     `toml:"max_attempts"`
	InitialBackoff string  `toml:"initial_backoff"`
	MaxBackoff     string  `toml:"max_backoff"`
	Multiplier     float64 `toml:"multiplier"`

	BreakerDisabled     bool    `toml:"breaker_disabled"`
	BreakerMinRequests  uint32  `toml:"breaker_min_requests"`
	BreakerFailureRatio float64 `toml:"breaker_failure_ratio"`
	BreakerOpenTimeout  string  `toml:"breaker_open_timeout"`
	BreakerHalfOpenMax  uint32  `toml:"breaker_half_open_max"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	MaxAttempts     string
	InitialBackoff  string
	MaxBackoff      string
	BreakerDisabled string
}

// InitialBackoffDuration returns InitialBackoff as a time.Duration.
func (c *Config) InitialBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialBackoff)
	return d
}

// MaxBackoffDuration returns MaxBackoff as a time.Duration.
func (c *Config) MaxBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	return d
}

// BreakerOpenTimeoutDuration returns BreakerOpenTimeout as a time.Duration.
func (c *Config) BreakerOpenTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.BreakerOpenTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.InitialBackoff != "" {
		c.InitialBackoff = overlay.InitialBackoff
	}
	if overlay.MaxBackoff != "" {
		c.MaxBackoff = overlay.MaxBackoff
	}
	if overlay.Multiplier != 0 {
		c.Multiplier = overlay.Multiplier
	}
	if overlay.BreakerDisabled {
		c.BreakerDisabled = true
	}
	if overlay.BreakerMinRequests != 0 {
		c.BreakerMinRequests = overlay.BreakerMinRequests
	}
	if overlay.BreakerFailureRatio != 0 {
		c.BreakerFailureRatio = overlay.BreakerFailureRatio
	}
	if overlay.BreakerOpenTimeout != "" {
		c.BreakerOpenTimeout = overlay.BreakerOpenTimeout
	}
	if overlay.BreakerHalfOpenMax != 0 {
		c.BreakerHalfOpenMax = overlay.BreakerHalfOpenMax
	}
}

func (c *Config) loadDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff == "" {
		c.InitialBackoff = "200ms"
	}
	if c.MaxBackoff == "" {
		c.MaxBackoff = "2s"
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = 10
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = 0.5
	}
	if c.BreakerOpenTimeout == "" {
		c.BreakerOpenTimeout = "30s"
	}
	if c.BreakerHalfOpenMax == 0 {
		c.BreakerHalfOpenMax = 2
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.MaxAttempts != "" {
		if v := os.Getenv(env.MaxAttempts); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxAttempts = n
			}
		}
	}
	if env.InitialBackoff != "" {
		if v := os.Getenv(env.InitialBackoff); v != "" {
			c.InitialBackoff = v
		}
	}
	if env.MaxBackoff != "" {
		if v := os.Getenv(env.MaxBackoff); v != "" {
			c.MaxBackoff = v
		}
	}
	if env.BreakerDisabled != "" {
		if v := os.Getenv(env.BreakerDisabled); v != "" {
			if disabled, err := strconv.ParseBool(v); err == nil {
				c.BreakerDisabled = disabled
			}
		}
	}
}

func (c *Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1: %d", c.MaxAttempts)
	}
	initial, err := time.ParseDuration(c.InitialBackoff)
	if err != nil {
		return fmt.Errorf("invalid initial_backoff: %w", err)
	}
	maxBackoff, err := time.ParseDuration(c.MaxBackoff)
	if err != nil {
		return fmt.Errorf("invalid max_backoff: %w", err)
	}
	if maxBackoff < initial {
		return fmt.Errorf("max_backoff (%s) is less than initial_backoff (%s)", c.MaxBackoff, c.InitialBackoff)
	}
	if _, err := time.ParseDuration(c.BreakerOpenTimeout); err != nil {
		return fmt.Errorf("invalid breaker_open_timeout: %w", err)
	}
	return nil
}
