// Package predictor is the client side of the external classification model.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/taxonomy"
)

var (
	// ErrUnavailable covers transport failures, error responses, and
	// document bytes that could not be read.
	ErrUnavailable = errors.New("predictor unavailable")
	// ErrInvalidVerdict marks a response that is not a usable verdict.
	ErrInvalidVerdict = errors.New("invalid predictor verdict")
	// ErrDocumentTooLarge marks document bytes above the configured limit.
	ErrDocumentTooLarge = errors.New("document exceeds predictor size limit")
)

// Predictor produces a verdict for one document.
type Predictor interface {
	Predict(ctx context.Context, doc documents.Document) (*Verdict, error)
}

// Verdict is the model's classification of a document together with the
// metadata it extracted.
type Verdict struct {
	Classification string          `json:"classification"`
	Confidence     *float64        `json:"confidence"`
	Reason         *string         `json:"reason"`
	Category       *string         `json:"category"`
	Subcategory    *string         `json:"subcategory"`
	Facility       *string         `json:"facility"`
	DocumentDate   *documents.Date `json:"document_date"`
	IsHandwritten  *bool           `json:"is_handwritten"`
}

// Validate trims the verdict, clears blank optional fields, and checks it
// against tx. Failures wrap ErrInvalidVerdict.
func (v *Verdict) Validate(tx *taxonomy.Taxonomy) error {
	v.Classification = strings.TrimSpace(v.Classification)
	v.Reason = blank(v.Reason)
	v.Category = blank(v.Category)
	v.Subcategory = blank(v.Subcategory)
	v.Facility = blank(v.Facility)

	if err := tx.ValidateLabel(v.Classification); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	if v.Confidence == nil {
		return fmt.Errorf("%w: confidence required", ErrInvalidVerdict)
	}
	if c := *v.Confidence; c < 0 || c > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidVerdict, c)
	}
	if err := tx.ValidatePair(v.Category, v.Subcategory); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	return nil
}

func blank(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
