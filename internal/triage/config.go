package triage

import (
	"fmt"
	"os"
	"strconv"
)

// Config bounds triage batches.
type Config struct {
	Concurrency  int `toml:"concurrency"`
	MaxBatchSize int `toml:"max_batch_size"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Concurrency  string
	MaxBatchSize string
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
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.MaxBatchSize != 0 {
		c.MaxBatchSize = overlay.MaxBatchSize
	}
}

func (c *Config) loadDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 1000
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Concurrency != "" {
		if v := os.Getenv(env.Concurrency); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Concurrency = n
			}
		}
	}
	if env.MaxBatchSize != "" {
		if v := os.Getenv(env.MaxBatchSize); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxBatchSize = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1")
	}
	return nil
}
