package infrastructure_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/JaimeStill/triage/internal/config"
	"github.com/JaimeStill/triage/internal/infrastructure"
	"github.com/JaimeStill/triage/internal/predictor"
	"github.com/JaimeStill/triage/pkg/database"
	"github.com/JaimeStill/triage/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func validConfig() *config.Config {
	return &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "triage",
			User:            "triage",
			Password:        "triage",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Storage: storage.Config{
			ContainerName:    "documents",
			ConnectionString: azuriteConnString,
		},
		Predictor: predictor.Config{
			BaseURL:         "http://localhost:9000",
			Timeout:         "30s",
			RateLimit:       5,
			Burst:           5,
			MaxDocumentSize: "25MB",
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Version: "0.1.0",
	}
}

func TestNew(t *testing.T) {
	infra, err := infrastructure.NewWithWriter(validConfig(), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil || infra.Logger == nil {
		t.Error("lifecycle and logger should be set")
	}
	if infra.Database == nil || infra.Database.Connection() == nil {
		t.Error("database should be set")
	}
	if infra.Storage == nil {
		t.Error("storage should be set")
	}
	if infra.Events == nil || infra.Executor == nil || infra.Metrics == nil {
		t.Error("events, executor, and metrics should be set")
	}
	if infra.Taxonomy == nil || !infra.Taxonomy.IsLabel("cancer_core") {
		t.Error("taxonomy should load the embedded defaults")
	}
	if infra.Predictor == nil {
		t.Error("predictor should be set")
	}
	infra.Database.Connection().Close()
}

func TestStartWithoutNATS(t *testing.T) {
	var buf bytes.Buffer
	infra, err := infrastructure.NewWithWriter(validConfig(), &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer infra.Database.Connection().Close()

	if err := infra.Events.Start(infra.Lifecycle); err != nil {
		t.Fatalf("noop events start: %v", err)
	}
	if !strings.Contains(buf.String(), "event publishing disabled") {
		t.Errorf("expected disabled notice in logs, got %q", buf.String())
	}
}

func TestNewInvalidStorageConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.ConnectionString = "not-a-connection-string"

	if _, err := infrastructure.NewWithWriter(cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for invalid storage connection string")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := infrastructure.NewLogger(&config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

		logger.Info("dropped")
		logger.Warn("kept", "document_id", "doc_001")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected one line above warn, got %d: %q", len(lines), buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("json handler output: %v", err)
		}
		if entry["msg"] != "kept" || entry["document_id"] != "doc_001" {
			t.Errorf("entry = %v", entry)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := infrastructure.NewLogger(&config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

		logger.Debug("visible")

		if !strings.Contains(buf.String(), "msg=visible") {
			t.Errorf("text output = %q", buf.String())
		}
	})
}
