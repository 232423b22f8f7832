// Package classifications runs documents through the predictor and records
// the verdicts, one document at a time or in bulk for a patient.
package classifications

import (
	"github.com/JaimeStill/triage/internal/documents"
)

// Bulk item statuses.
const (
	StatusClassified = "classified"
	StatusError      = "error"
	StatusDuplicate  = "duplicate"
)

// Result is a document's stored verdict after a classify call.
// PreviouslyClassified is set when the stored verdict was returned without
// invoking the predictor.
type Result struct {
	DocumentID           string          `json:"document_id"`
	Classification       *string         `json:"classification"`
	Confidence           *float64        `json:"confidence"`
	Reason               *string         `json:"reason"`
	Category             *string         `json:"category"`
	Subcategory          *string         `json:"subcategory"`
	Facility             *string         `json:"facility"`
	DocumentDate         *documents.Date `json:"document_date"`
	IsHandwritten        *bool           `json:"is_handwritten"`
	PreviouslyClassified bool            `json:"previously_classified"`
}

func resultFrom(d documents.Document, previously bool) *Result {
	return &Result{
		DocumentID:           d.ID,
		Classification:       d.Classification,
		Confidence:           d.ClassificationConfidence,
		Reason:               d.ClassificationReason,
		Category:             d.Category,
		Subcategory:          d.Subcategory,
		Facility:             d.Facility,
		DocumentDate:         d.DocumentDate,
		IsHandwritten:        d.IsHandwritten,
		PreviouslyClassified: previously,
	}
}

// ClassifyCommand is the body of a single-document classify request.
type ClassifyCommand struct {
	Force bool `json:"force"`
}

// BulkCommand is the body of a bulk classify request. An empty list selects
// every pending document of the patient.
type BulkCommand struct {
	DocumentIDs []string `json:"document_ids"`
}

// BulkItem is one document's outcome in a bulk run. On success the verdict
// fields are inlined; on failure Error carries the message.
type BulkItem struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	*Result
}

// BulkResult aggregates a bulk run in resolved document order. Results has
// one item per requested id; TotalDocuments counts distinct ids attempted.
type BulkResult struct {
	TotalDocuments int        `json:"total_documents"`
	Classified     int        `json:"classified"`
	Results        []BulkItem `json:"results"`
}
