package classifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/metrics"
	"github.com/JaimeStill/triage/internal/predictor"
	"github.com/JaimeStill/triage/pkg/batch"
	"github.com/JaimeStill/triage/pkg/repository"
)

// errLostRace reports a compare-and-swap write that matched no row.
var errLostRace = errors.New("classification version changed")

type repo struct {
	db        *sql.DB
	docs      documents.System
	predictor predictor.Predictor
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	inflight singleflight.Group
}

// New creates a classification repository implementing the System interface.
// A nil metrics records nothing.
func New(
	db *sql.DB,
	docs documents.System,
	p predictor.Predictor,
	cfg *Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) System {
	return &repo{
		db:        db,
		docs:      docs,
		predictor: p,
		cfg:       *cfg,
		metrics:   m,
		logger:    logger.With("system", "classifications"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Classify(ctx context.Context, patientID, documentID string, force bool) (*Result, error) {
	res, err := r.classify(ctx, patientID, strings.TrimSpace(documentID), force)

	switch {
	case err != nil:
		r.metrics.RecordClassification("error")
	case res.PreviouslyClassified:
		r.metrics.RecordClassification("previously_classified")
	default:
		r.metrics.RecordClassification("classified")
	}
	return res, err
}

// classify collapses concurrent unforced calls for the same document onto a
// single run. The shared run is detached from any one caller's cancellation
// and bounded by the item timeout instead.
func (r *repo) classify(ctx context.Context, patientID, documentID string, force bool) (*Result, error) {
	if documentID == "" {
		return nil, documents.ErrNotFound
	}
	if force {
		return r.run(ctx, patientID, documentID, true)
	}

	ch := r.inflight.DoChan(patientID+"/"+documentID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ItemTimeoutDuration())
		defer cancel()
		return r.run(rctx, patientID, documentID, false)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		res := *out.Val.(*Result)
		return &res, nil
	}
}

func (r *repo) run(ctx context.Context, patientID, documentID string, force bool) (*Result, error) {
	doc, err := r.docs.Find(ctx, patientID, documentID)
	if err != nil {
		return nil, err
	}

	if doc.Classified() && !force {
		return resultFrom(*doc, true), nil
	}

	verdict, err := r.predictor.Predict(ctx, *doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPredictor, err)
	}

	updated, err := r.persist(ctx, doc, verdict, force)
	if errors.Is(err, errLostRace) {
		return r.settle(ctx, patientID, documentID, force)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("document classified",
		"id", updated.ID,
		"patient_id", patientID,
		"classification", *updated.Classification,
		"confidence", *updated.ClassificationConfidence,
		"force", force,
	)
	return resultFrom(*updated, false), nil
}

// settle resolves a lost compare-and-swap. An unforced call accepts a
// verdict written by the winner; anything else is a conflict.
func (r *repo) settle(ctx context.Context, patientID, documentID string, force bool) (*Result, error) {
	if !force {
		current, err := r.docs.Find(ctx, patientID, documentID)
		if err != nil {
			return nil, err
		}
		if current.Classified() {
			return resultFrom(*current, true), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrConflict, documentID)
}

const persistQ = `
	UPDATE documents
	SET classification = $4,
		classification_confidence = $5,
		classification_reason = $6,
		category = CASE WHEN $7::text IS NULL THEN category ELSE $7 END,
		subcategory = CASE WHEN $7::text IS NULL THEN subcategory ELSE $8 END,
		facility = COALESCE($9, facility),
		document_date = COALESCE($10::date, document_date),
		is_handwritten = COALESCE($11::boolean, is_handwritten),
		classification_version = classification_version + 1,
		updated_at = GREATEST(updated_at, NOW())
	WHERE id = $1 AND patient_id = $2 AND classification_version = $3`

// persist writes the verdict only if the document is still at the version
// that was read. Unforced writes additionally require it to be unclassified.
// A verdict without a category leaves the stored category pair in place.
func (r *repo) persist(
	ctx context.Context,
	doc *documents.Document,
	v *predictor.Verdict,
	force bool,
) (*documents.Document, error) {
	q := persistQ
	if !force {
		q += " AND classification IS NULL"
	}
	q += "\n\tRETURNING " + documents.Returning()

	args := []any{
		doc.ID, doc.PatientID, doc.ClassificationVersion,
		v.Classification, v.Confidence, v.Reason,
		v.Category, v.Subcategory, v.Facility,
		v.DocumentDate, v.IsHandwritten,
	}

	updated, err := repository.QueryOne(ctx, r.db, q, args, documents.Scan)
	if err != nil {
		return nil, repository.MapError(err, errLostRace, nil)
	}
	return &updated, nil
}

const pendingQ = `
	SELECT id FROM documents
	WHERE patient_id = $1 AND classification IS NULL
	ORDER BY created_at ASC, id ASC`

func scanID(s repository.Scanner) (string, error) {
	var id string
	err := s.Scan(&id)
	return id, err
}

func (r *repo) ClassifyBulk(ctx context.Context, patientID string, documentIDs []string) (*BulkResult, error) {
	ids, err := r.resolve(ctx, patientID, documentIDs)
	if err != nil {
		return nil, err
	}

	first := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := first[id]; !ok {
			first[id] = i
		}
	}

	items := batch.Run(ctx, ids, r.cfg.BulkConcurrency, func(ctx context.Context, i int, id string) BulkItem {
		if first[id] != i {
			return BulkItem{DocumentID: id, Status: StatusDuplicate}
		}

		ictx, cancel := context.WithTimeout(ctx, r.cfg.ItemTimeoutDuration())
		defer cancel()

		res, err := r.Classify(ictx, patientID, id, false)
		if err != nil {
			r.logger.Warn("bulk item failed", "patient_id", patientID, "document_id", id, "error", err)
			return BulkItem{DocumentID: id, Status: StatusError, Error: itemError(err)}
		}
		return BulkItem{DocumentID: id, Status: StatusClassified, Result: res}
	})

	result := &BulkResult{
		TotalDocuments: len(first),
		Results:        items,
	}
	for _, item := range items {
		if item.Result != nil && item.Classification != nil {
			result.Classified++
		}
	}

	r.logger.Info("bulk classification complete",
		"patient_id", patientID,
		"total", result.TotalDocuments,
		"classified", result.Classified,
	)
	return result, nil
}

// resolve returns the explicit ids trimmed in request order, or the
// patient's pending documents in creation order.
func (r *repo) resolve(ctx context.Context, patientID string, documentIDs []string) ([]string, error) {
	if len(documentIDs) == 0 {
		ids, err := repository.QueryMany(ctx, r.db, pendingQ, []any{patientID}, scanID)
		if err != nil {
			return nil, repository.MapError(fmt.Errorf("query pending documents: %w", err), documents.ErrNotFound, nil)
		}
		return ids, nil
	}

	if len(documentIDs) > r.cfg.MaxBulkDocuments {
		return nil, fmt.Errorf("%w: %d document ids exceed the limit of %d",
			ErrInvalidRequest, len(documentIDs), r.cfg.MaxBulkDocuments)
	}

	ids := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		ids[i] = strings.TrimSpace(id)
	}
	return ids, nil
}
