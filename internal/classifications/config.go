package classifications

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config bounds bulk classification.
type Config struct {
	BulkConcurrency  int    `toml:"bulk_concurrency"`
	MaxBulkDocuments int    `toml:"max_bulk_documents"`
	ItemTimeout      string `toml:"item_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BulkConcurrency  string
	MaxBulkDocuments string
	ItemTimeout      string
}

// ItemTimeoutDuration returns ItemTimeout as a time.Duration.
func (c *Config) ItemTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ItemTimeout)
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
	if overlay.BulkConcurrency != 0 {
		c.BulkConcurrency = overlay.BulkConcurrency
	}
	if overlay.MaxBulkDocuments != 0 {
		c.MaxBulkDocuments = overlay.MaxBulkDocuments
	}
	if overlay.ItemTimeout != "" {
		c.ItemTimeout = overlay.ItemTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.BulkConcurrency <= 0 {
		c.BulkConcurrency = 4
	}
	if c.MaxBulkDocuments <= 0 {
		c.MaxBulkDocuments = 500
	}
	if c.ItemTimeout == "" {
		c.ItemTimeout = "2m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.BulkConcurrency != "" {
		if v := os.Getenv(env.BulkConcurrency); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.BulkConcurrency = n
			}
		}
	}
	if env.MaxBulkDocuments != "" {
		if v := os.Getenv(env.MaxBulkDocuments); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxBulkDocuments = n
			}
		}
	}
	if env.ItemTimeout != "" {
		if v := os.Getenv(env.ItemTimeout); v != "" {
			c.ItemTimeout = v
		}
	}
}

func (c *Config) validate() error {
	if c.BulkConcurrency < 1 {
		return fmt.Errorf("bulk_concurrency must be at least 1")
	}
	if c.MaxBulkDocuments < 1 {
		return fmt.Errorf("max_bulk_documents must be at least 1")
	}
	if d, err := time.ParseDuration(c.ItemTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid item_timeout: %q", c.ItemTimeout)
	}
	return nil
}
