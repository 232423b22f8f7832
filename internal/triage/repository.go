package triage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/metrics"
	"github.com/JaimeStill/triage/internal/taxonomy"
	"github.com/JaimeStill/triage/pkg/batch"
	"github.com/JaimeStill/triage/pkg/events"
	"github.com/JaimeStill/triage/pkg/repository"
)

type repo struct {
	db       *sql.DB
	taxonomy *taxonomy.Taxonomy
	events   events.Publisher
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a triage repository implementing the System interface.
// A nil metrics records nothing.
func New(
	db *sql.DB,
	tx *taxonomy.Taxonomy,
	pub events.Publisher,
	cfg *Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) System {
	return &repo{
		db:       db,
		taxonomy: tx,
		events:   pub,
		cfg:      *cfg,
		metrics:  m,
		logger:   logger.With("system", "triage"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) ApplyBatch(ctx context.Context, patientID string, updates []Update) (*BatchResult, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: updates required", ErrInvalidBatch)
	}
	if len(updates) > r.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d updates exceed the limit of %d",
			ErrInvalidBatch, len(updates), r.cfg.MaxBatchSize)
	}

	results := batch.Run(ctx, updates, r.cfg.Concurrency, func(ctx context.Context, _ int, u Update) ItemResult {
		res := r.apply(ctx, patientID, u)
		r.metrics.RecordTriageItem(res.Status)
		return res
	})

	out := &BatchResult{Results: results}
	for _, res := range results {
		if res.Status != StatusUpdated {
			continue
		}
		out.Updated++
		if res.ApprovedForExtraction != nil && *res.ApprovedForExtraction {
			out.ApprovedForExtraction++
		}
	}

	r.logger.Info("triage batch applied",
		"patient_id", patientID,
		"items", len(updates),
		"updated", out.Updated,
		"approved_for_extraction", out.ApprovedForExtraction,
	)
	return out, nil
}

// applyQ locks the row in the CTE so the prior approval is read and the
// update is written by one statement. A supplied classification starts a new
// classification epoch and guarantees a confidence.
const applyQ = `
	WITH prior AS (
		SELECT id, approved_for_extraction
		FROM documents
		WHERE id = $1 AND patient_id = $2
		FOR UPDATE
	)
	UPDATE documents d
	SET classification = COALESCE($3, d.classification),
		classification_confidence = CASE
			WHEN $3::text IS NULL THEN d.classification_confidence
			ELSE COALESCE(d.classification_confidence, 1.0)
		END,
		classification_version = CASE
			WHEN $3::text IS NULL THEN d.classification_version
			ELSE d.classification_version + 1
		END,
		approved_for_extraction = COALESCE($4, d.approved_for_extraction),
		reviewed_at = NOW(),
		updated_at = GREATEST(d.updated_at, NOW())
	FROM prior
	WHERE d.id = prior.id
	RETURNING d.classification, d.approved_for_extraction, prior.approved_for_extraction`

type outcome struct {
	classification *string
	approved       bool
	wasApproved    bool
}

func scanOutcome(s repository.Scanner) (outcome, error) {
	var o outcome
	err := s.Scan(&o.classification, &o.approved, &o.wasApproved)
	return o, err
}

func (r *repo) apply(ctx context.Context, patientID string, u Update) ItemResult {
	res := ItemResult{DocumentID: u.DocumentID, Status: StatusError}

	id := strings.TrimSpace(u.DocumentID)
	if id == "" {
		res.Error = documents.NotFoundMessage
		return res
	}
	if u.empty() {
		res.Error = msgNoFields
		return res
	}
	if u.Classification != nil {
		if err := r.taxonomy.ValidateLabel(*u.Classification); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	o, err := repository.QueryOne(ctx, r.db, applyQ,
		[]any{id, patientID, u.Classification, u.ApprovedForExtraction},
		scanOutcome,
	)
	if err != nil {
		err = repository.MapError(err, documents.ErrNotFound, nil)
		if errors.Is(err, documents.ErrNotFound) {
			res.Error = documents.NotFoundMessage
		} else {
			r.logger.Error("triage update failed", "patient_id", patientID, "document_id", id, "error", err)
			res.Error = err.Error()
		}
		return res
	}

	res.Status = StatusUpdated
	res.Classification = o.classification
	res.ApprovedForExtraction = &o.approved

	if o.approved && !o.wasApproved {
		r.metrics.RecordApproval()
		r.publishApproval(ctx, patientID, id, o.classification)
	}
	return res
}

func (r *repo) publishApproval(ctx context.Context, patientID, documentID string, classification *string) {
	event := ApprovedEvent{
		DocumentID:     documentID,
		PatientID:      patientID,
		Classification: classification,
		ApprovedAt:     time.Now().UTC(),
	}
	if err := r.events.Publish(ctx, EventApproved, event); err != nil {
		r.logger.Warn("approval event not published",
			"patient_id", patientID,
			"document_id", documentID,
			"error", err,
		)
	}
}
