package documents

import "context"

// System defines the public contract for document domain operations.
// Every operation is scoped to the owning patient.
type System interface {
	Handler() *Handler

	Find(ctx context.Context, patientID, documentID string) (*Document, error)
	List(ctx context.Context, patientID string, filters Filters) (*ListResult, error)
	Update(ctx context.Context, patientID, documentID string, cmd UpdateCommand) (*Document, error)
}
