package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JaimeStill/triage/internal/classifications"
	"github.com/JaimeStill/triage/internal/predictor"
	"github.com/JaimeStill/triage/internal/triage"
	"github.com/JaimeStill/triage/pkg/database"
	"github.com/JaimeStill/triage/pkg/events"
	"github.com/JaimeStill/triage/pkg/openapi"
	"github.com/JaimeStill/triage/pkg/resilience"
	"github.com/JaimeStill/triage/pkg/storage"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTriageEnv             = "TRIAGE_ENV"
	EnvTriageShutdownTimeout = "TRIAGE_SHUTDOWN_TIMEOUT"
	EnvTriageVersion         = "TRIAGE_VERSION"
)

var databaseEnv = &database.Env{
	URL:             "TRIAGE_DB_URL",
	Host:            "TRIAGE_DB_HOST",
	Port:            "TRIAGE_DB_PORT",
	Name:            "TRIAGE_DB_NAME",
	User:            "TRIAGE_DB_USER",
	Password:        "TRIAGE_DB_PASSWORD",
	SSLMode:         "TRIAGE_DB_SSL_MODE",
	MaxOpenConns:    "TRIAGE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TRIAGE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TRIAGE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TRIAGE_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "TRIAGE_STORAGE_CONTAINER_NAME",
	ConnectionString: "TRIAGE_STORAGE_CONNECTION_STRING",
}

var predictorEnv = &predictor.Env{
	BaseURL:         "TRIAGE_PREDICTOR_BASE_URL",
	APIKey:          "TRIAGE_PREDICTOR_API_KEY",
	Timeout:         "TRIAGE_PREDICTOR_TIMEOUT",
	RateLimit:       "TRIAGE_PREDICTOR_RATE_LIMIT",
	MaxDocumentSize: "TRIAGE_PREDICTOR_MAX_DOCUMENT_SIZE",
}

var eventsEnv = &events.Env{
	URL:           "TRIAGE_NATS_URL",
	SubjectPrefix: "TRIAGE_NATS_SUBJECT_PREFIX",
	MaxReconnects: "TRIAGE_NATS_MAX_RECONNECTS",
}

var resilienceEnv = &resilience.Env{
	MaxAttempts:     "TRIAGE_RESILIENCE_MAX_ATTEMPTS",
	InitialBackoff:  "TRIAGE_RESILIENCE_INITIAL_BACKOFF",
	MaxBackoff:      "TRIAGE_RESILIENCE_MAX_BACKOFF",
	BreakerDisabled: "TRIAGE_RESILIENCE_BREAKER_DISABLED",
}

var classificationEnv = &classifications.Env{
	BulkConcurrency:  "TRIAGE_CLASSIFICATION_BULK_CONCURRENCY",
	MaxBulkDocuments: "TRIAGE_CLASSIFICATION_MAX_BULK_DOCUMENTS",
	ItemTimeout:      "TRIAGE_CLASSIFICATION_ITEM_TIMEOUT",
}

var triageEnv = &triage.Env{
	Concurrency:  "TRIAGE_BATCH_CONCURRENCY",
	MaxBatchSize: "TRIAGE_BATCH_MAX_SIZE",
}

var openapiEnv = &openapi.ConfigEnv{
	Title:       "TRIAGE_OPENAPI_TITLE",
	Description: "TRIAGE_OPENAPI_DESCRIPTION",
}

// Config is the root configuration for the triage service.
type Config struct {
	Server          ServerConfig           `toml:"server"`
	Database        database.Config        `toml:"database"`
	Storage         storage.Config         `toml:"storage"`
	Predictor       predictor.Config       `toml:"predictor"`
	Events          events.Config          `toml:"events"`
	Resilience      resilience.Config      `toml:"resilience"`
	Logging         LoggingConfig          `toml:"logging"`
	API             APIConfig              `toml:"api"`
	OpenAPI         openapi.Config         `toml:"openapi"`
	Classification  classifications.Config `toml:"classification"`
	Triage          triage.Config          `toml:"triage"`
	ShutdownTimeout string                 `toml:"shutdown_timeout"`
	Version         string                 `toml:"version"`
}

// Env returns the TRIAGE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTriageEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	return LoadFrom(BaseConfigFile)
}

// LoadFrom is Load with an explicit base file. The overlay is resolved
// relative to the same directory.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(path); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Predictor.Merge(&overlay.Predictor)
	c.Events.Merge(&overlay.Events)
	c.Resilience.Merge(&overlay.Resilience)
	c.Logging.Merge(&overlay.Logging)
	c.API.Merge(&overlay.API)
	c.OpenAPI.Merge(&overlay.OpenAPI)
	c.Classification.Merge(&overlay.Classification)
	c.Triage.Merge(&overlay.Triage)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Predictor.Finalize(predictorEnv); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}
	if err := c.Events.Finalize(eventsEnv); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Resilience.Finalize(resilienceEnv); err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	if err := c.Logging.Finalize(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.OpenAPI.Finalize(openapiEnv); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	if err := c.Classification.Finalize(classificationEnv); err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	if err := c.Triage.Finalize(triageEnv); err != nil {
		return fmt.Errorf("triage: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvTriageShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvTriageVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath(base string) string {
	env := os.Getenv(EnvTriageEnv)
	if env == "" {
		return ""
	}
	path := fmt.Sprintf(OverlayConfigPattern, env)
	if dir := filepath.Dir(base); dir != "." {
		path = filepath.Join(dir, path)
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
