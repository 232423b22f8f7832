// Package documents implements the patient document domain: scoped reads,
// the filtered document index, and metadata edits.
package documents

import "time"

// NotFoundMessage is reported for per-item failures in batch operations
// when a document is absent or owned by another patient.
const NotFoundMessage = "Document not found or does not belong to patient"

// Document is a patient document with its taxonomy fields and triage state.
// ClassificationVersion increments on every write to Classification.
type Document struct {
	ID                       string     `json:"id"`
	PatientID                string     `json:"patient_id"`
	Filename                 string     `json:"filename"`
	StorageKey               string     `json:"storage_key"`
	ContentType              string     `json:"content_type"`
	DocumentDate             *Date      `json:"document_date"`
	IsHandwritten            *bool      `json:"is_handwritten"`
	Category                 *string    `json:"category"`
	Subcategory              *string    `json:"subcategory"`
	Facility                 *string    `json:"facility"`
	Classification           *string    `json:"classification"`
	ClassificationConfidence *float64   `json:"classification_confidence"`
	ClassificationReason     *string    `json:"classification_reason"`
	ClassificationVersion    int        `json:"classification_version"`
	ApprovedForExtraction    bool       `json:"approved_for_extraction"`
	ReviewedAt               *time.Time `json:"reviewed_at"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// Classified reports whether the document carries a classification label.
func (d *Document) Classified() bool {
	return d.Classification != nil
}

// UpdateCommand is a partial metadata edit. Nil fields are left unchanged;
// an empty string clears the field.
type UpdateCommand struct {
	Category    *string `json:"category,omitempty"`
	Subcategory *string `json:"subcategory,omitempty"`
	Facility    *string `json:"facility,omitempty"`
}

// Empty reports whether the command supplies no fields.
func (c UpdateCommand) Empty() bool {
	return c.Category == nil && c.Subcategory == nil && c.Facility == nil
}

// apply returns the category, subcategory, and facility that result from
// applying c to d.
func (c UpdateCommand) apply(d Document) (category, subcategory, facility *string) {
	return merge(d.Category, c.Category), merge(d.Subcategory, c.Subcategory), merge(d.Facility, c.Facility)
}

func merge(current, supplied *string) *string {
	if supplied == nil {
		return current
	}
	if *supplied == "" {
		return nil
	}
	return supplied
}

// ListResult is the filtered index response: matching documents, their
// count, and the filters as applied.
type ListResult struct {
	Data    []Document `json:"data"`
	Total   int        `json:"total"`
	Filters Filters    `json:"filters"`
}
