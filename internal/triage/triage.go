// Package triage applies batches of review decisions to a patient's
// documents: a classification label, an extraction approval, or both.
package triage

import "time"

// Item statuses.
const (
	StatusUpdated = "updated"
	StatusError   = "error"
)

// EventApproved is published when a document becomes approved for extraction.
const EventApproved = "document.approved"

// Update is one triage decision. Nil fields are left unchanged.
type Update struct {
	DocumentID            string  `json:"document_id"`
	Classification        *string `json:"classification,omitempty"`
	ApprovedForExtraction *bool   `json:"approved_for_extraction,omitempty"`
}

func (u Update) empty() bool {
	return u.Classification == nil && u.ApprovedForExtraction == nil
}

// BatchCommand is the body of a triage batch request.
type BatchCommand struct {
	Updates []Update `json:"updates"`
}

// ItemResult is the outcome of one update. Updated items carry the
// resulting classification and approval.
type ItemResult struct {
	DocumentID            string  `json:"document_id"`
	Status                string  `json:"status"`
	Error                 string  `json:"error,omitempty"`
	Classification        *string `json:"classification,omitempty"`
	ApprovedForExtraction *bool   `json:"approved_for_extraction,omitempty"`
}

// BatchResult aggregates a batch in input order.
type BatchResult struct {
	Updated               int          `json:"updated"`
	ApprovedForExtraction int          `json:"approved_for_extraction"`
	Results               []ItemResult `json:"results"`
}

// ApprovedEvent is the payload of EventApproved.
type ApprovedEvent struct {
	DocumentID     string    `json:"document_id"`
	PatientID      string    `json:"patient_id"`
	Classification *string   `json:"classification"`
	ApprovedAt     time.Time `json:"approved_at"`
}
