package triage

import "context"

// System defines the public contract for triage operations.
type System interface {
	Handler() *Handler

	// ApplyBatch applies each update to the patient's document independently.
	// Item failures are reported per item; only a malformed batch fails the call.
	ApplyBatch(ctx context.Context, patientID string, updates []Update) (*BatchResult, error)
}
