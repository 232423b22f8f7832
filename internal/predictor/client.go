package predictor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/time/rate"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/metrics"
	"github.com/JaimeStill/triage/internal/taxonomy"
	"github.com/JaimeStill/triage/pkg/formatting"
	"github.com/JaimeStill/triage/pkg/middleware"
	"github.com/JaimeStill/triage/pkg/resilience"
	"github.com/JaimeStill/triage/pkg/storage"
)

const (
	classifyPath    = "/v1/classify"
	maxResponseSize = 1 << 20
	maxErrorBody    = 200
)

// StatusError is a non-2xx predictor response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("predictor responded %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Classify retries throttling and server errors. Other error responses are
// final and do not count against the breaker.
func Classify(err error) resilience.ErrorClassification {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Retryable() {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	return resilience.Transient(err)
}

type request struct {
	DocumentID  string `json:"document_id"`
	PatientID   string `json:"patient_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	PageCount   *int   `json:"page_count,omitempty"`
	Content     string `json:"content"`
}

// Client calls the predictor over HTTP with the document bytes inlined as
// a base64 data URI.
type Client struct {
	endpoint string
	apiKey   string
	maxSize  int64

	http     *http.Client
	limiter  *rate.Limiter
	executor *resilience.Executor
	storage  storage.System
	taxonomy *taxonomy.Taxonomy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Client from a finalized Config. A nil executor sends each
// request once; a nil metrics records nothing.
func New(
	cfg *Config,
	store storage.System,
	exec *resilience.Executor,
	tx *taxonomy.Taxonomy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + classifyPath,
		apiKey:   cfg.APIKey,
		maxSize:  cfg.MaxDocumentSizeBytes(),
		http:     &http.Client{Timeout: cfg.TimeoutDuration()},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		executor: exec,
		storage:  store,
		taxonomy: tx,
		metrics:  m,
		logger:   logger.With("system", "predictor"),
	}
}

// Predict downloads the document bytes, submits them, and returns the
// validated verdict.
func (c *Client) Predict(ctx context.Context, doc documents.Document) (*Verdict, error) {
	start := time.Now()
	v, err := c.predict(ctx, doc)
	c.metrics.ObservePredictor(err, time.Since(start))

	if err != nil {
		c.logger.Warn("prediction failed", "document_id", doc.ID, "error", err)
		return nil, err
	}

	c.logger.Debug("prediction received",
		"document_id", doc.ID,
		"classification", v.Classification,
		"duration", time.Since(start),
	)
	return v, nil
}

func (c *Client) predict(ctx context.Context, doc documents.Document) (*Verdict, error) {
	body, err := c.payload(ctx, doc)
	if err != nil {
		return nil, err
	}

	var raw []byte
	call := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		data, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		raw = data
		return nil
	}

	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "predictor.classify", call, Classify)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	v, err := formatting.Parse[Verdict](string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	if err := v.Validate(c.taxonomy); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) payload(ctx context.Context, doc documents.Document) ([]byte, error) {
	blob, err := c.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %w", ErrUnavailable, doc.StorageKey, err)
	}
	defer blob.Body.Close()

	if blob.ContentLength > c.maxSize {
		return nil, c.tooLarge(blob.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(blob.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, doc.StorageKey, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, c.tooLarge(int64(len(data)))
	}

	contentType := detectContentType(data, doc.ContentType, blob.ContentType)

	return json.Marshal(request{
		DocumentID:  doc.ID,
		PatientID:   doc.PatientID,
		Filename:    doc.Filename,
		ContentType: contentType,
		PageCount:   c.pageCount(data, contentType),
		Content:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	})
}

func (c *Client) tooLarge(n int64) error {
	return fmt.Errorf("%w: %s over %s",
		ErrDocumentTooLarge,
		formatting.FormatBytes(n, 1),
		formatting.FormatBytes(c.maxSize, 1),
	)
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if id := middleware.RequestID(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := formatting.Truncate(strings.TrimSpace(string(data)), maxErrorBody)
		return nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}
	return data, nil
}

func (c *Client) pageCount(data []byte, contentType string) *int {
	if contentType != "application/pdf" {
		return nil
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		c.logger.Warn("failed to extract PDF page count", "error", err)
		return nil
	}
	return &count
}

func detectContentType(data []byte, candidates ...string) string {
	for _, ct := range candidates {
		ct = strings.TrimSpace(ct)
		if ct != "" && ct != "application/octet-stream" {
			return ct
		}
	}
	return http.DetectContentType(data)
}
