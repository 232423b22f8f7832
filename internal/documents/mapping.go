package documents

import (
	"github.com/JaimeStill/triage/pkg/query"
	"github.com/JaimeStill/triage/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("id", "ID").
	Project("patient_id", "PatientID").
	Project("filename", "Filename").
	Project("storage_key", "StorageKey").
	Project("content_type", "ContentType").
	Project("document_date", "DocumentDate").
	Project("is_handwritten", "IsHandwritten").
	Project("category", "Category").
	Project("subcategory", "Subcategory").
	Project("facility", "Facility").
	Project("classification", "Classification").
	Project("classification_confidence", "ClassificationConfidence").
	Project("classification_reason", "ClassificationReason").
	Project("classification_version", "ClassificationVersion").
	Project("approved_for_extraction", "ApprovedForExtraction").
	Project("reviewed_at", "ReviewedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

// Returning lists the document columns for UPDATE ... RETURNING clauses
// whose rows are read with Scan.
func Returning() string {
	return projection.Returning()
}

// Scan reads a document row in projection order.
func Scan(s repository.Scanner) (Document, error) {
	var d Document
	err := s.Scan(
		&d.ID,
		&d.PatientID,
		&d.Filename,
		&d.StorageKey,
		&d.ContentType,
		&d.DocumentDate,
		&d.IsHandwritten,
		&d.Category,
		&d.Subcategory,
		&d.Facility,
		&d.Classification,
		&d.ClassificationConfidence,
		&d.ClassificationReason,
		&d.ClassificationVersion,
		&d.ApprovedForExtraction,
		&d.ReviewedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}

// scoped returns a builder restricted to one patient's documents.
func scoped(patientID string) *query.Builder {
	return query.NewBuilder(projection).WhereEquals("PatientID", patientID)
}
