package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/triage/internal/taxonomy"
	"github.com/JaimeStill/triage/pkg/repository"
)

type repo struct {
	db       *sql.DB
	taxonomy *taxonomy.Taxonomy
	logger   *slog.Logger
}

// New creates a document repository implementing the System interface.
func New(db *sql.DB, tx *taxonomy.Taxonomy, logger *slog.Logger) System {
	return &repo{
		db:       db,
		taxonomy: tx,
		logger:   logger.With("system", "documents"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Find(ctx context.Context, patientID, documentID string) (*Document, error) {
	q, args := scoped(patientID).WhereEquals("ID", documentID).BuildSingleOrNull()

	d, err := repository.QueryOne(ctx, r.db, q, args, Scan)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, nil)
	}
	return &d, nil
}

func (r *repo) List(ctx context.Context, patientID string, filters Filters) (*ListResult, error) {
	if err := filters.Normalize(r.taxonomy); err != nil {
		return nil, err
	}

	if filters.Unmatchable(r.taxonomy) {
		return &ListResult{Data: []Document{}, Filters: filters}, nil
	}

	q, args := filters.Apply(scoped(patientID)).Build()

	docs, err := repository.QueryMany(ctx, r.db, q, args, Scan)
	if err != nil {
		return nil, repository.MapError(fmt.Errorf("query documents: %w", err), ErrNotFound, nil)
	}

	return &ListResult{
		Data:    docs,
		Total:   len(docs),
		Filters: filters,
	}, nil
}

const updateMetadataQ = `
	UPDATE documents
	SET category = $3, subcategory = $4, facility = $5,
		updated_at = GREATEST(updated_at, NOW())
	WHERE id = $1 AND patient_id = $2
	RETURNING %s`

func (r *repo) Update(ctx context.Context, patientID, documentID string, cmd UpdateCommand) (*Document, error) {
	if cmd.Empty() {
		return nil, fmt.Errorf("%w: no fields supplied", ErrInvalidUpdate)
	}

	lockQ, lockArgs := scoped(patientID).WhereEquals("ID", documentID).BuildSingleOrNull()
	updateQ := fmt.Sprintf(updateMetadataQ, Returning())

	d, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Document, error) {
		current, err := repository.QueryOne(ctx, tx, lockQ+" FOR UPDATE", lockArgs, Scan)
		if err != nil {
			return Document{}, err
		}

		category, subcategory, facility := cmd.apply(current)
		if err := r.taxonomy.ValidatePair(category, subcategory); err != nil {
			return Document{}, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
		}

		return repository.QueryOne(
			ctx, tx, updateQ,
			[]any{documentID, patientID, category, subcategory, facility},
			Scan,
		)
	})

	if err != nil {
		if errors.Is(err, ErrInvalidUpdate) {
			return nil, err
		}
		return nil, repository.MapError(err, ErrNotFound, nil)
	}

	r.logger.Info("document metadata updated",
		"id", d.ID,
		"patient_id", patientID,
		"category", deref(d.Category),
		"subcategory", deref(d.Subcategory),
	)
	return &d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
