package classifications

import "context"

// System defines the public contract for classification domain operations.
type System interface {
	Handler() *Handler

	// Classify records a verdict for one document. Unless force is set, an
	// already classified document is returned as stored.
	Classify(ctx context.Context, patientID, documentID string, force bool) (*Result, error)

	// ClassifyBulk classifies documentIDs, or every pending document of the
	// patient when the list is empty, without forcing. Per-document failures
	// are reported in the result.
	ClassifyBulk(ctx context.Context, patientID string, documentIDs []string) (*BulkResult, error)
}
