package classifications

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/pkg/handlers"
	"github.com/JaimeStill/triage/pkg/routes"
)

// Handler provides HTTP endpoints for classification operations.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "classifications"),
	}
}

// Routes returns the route group definition for classification endpoints.
// They share the patient document prefix.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:  documents.Prefix,
		Tags:    []string{"Classification"},
		Schemas: schemas,
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/classify", Handler: h.ClassifyBulk, OpenAPI: bulkOp},
			{Method: "POST", Pattern: "/{document_id}/classify", Handler: h.Classify, OpenAPI: classifyOp},
		},
	}
}

// Classify classifies a single document. The request body is optional.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var cmd ClassifyCommand
	if err := handlers.DecodeJSON(r, &cmd, true); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.Classify(r.Context(), r.PathValue("patient_id"), r.PathValue("document_id"), cmd.Force)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondOK(w, result)
}

// ClassifyBulk classifies the listed documents, or all pending documents
// when none are listed.
func (h *Handler) ClassifyBulk(w http.ResponseWriter, r *http.Request) {
	var cmd BulkCommand
	if err := handlers.DecodeJSON(r, &cmd, true); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.ClassifyBulk(r.Context(), r.PathValue("patient_id"), cmd.DocumentIDs)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondOK(w, result)
}
