package documents

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/triage/pkg/handlers"
	"github.com/JaimeStill/triage/pkg/routes"
)

// Prefix is the route prefix shared by every patient document endpoint.
const Prefix = "/patients/{patient_id}/documents"

// Handler provides HTTP endpoints for document operations.
type Handler struct {
	sys    System
	logger *slog.Logger
}

type listResponse struct {
	Success bool `json:"success"`
	*ListResult
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "documents"),
	}
}

// Routes returns the route group definition for document endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:  Prefix,
		Tags:    []string{"Documents"},
		Schemas: schemas,
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: listOp},
			{Method: "GET", Pattern: "/{document_id}", Handler: h.Find, OpenAPI: findOp},
			{Method: "PATCH", Pattern: "/{document_id}", Handler: h.Update, OpenAPI: updateOp},
		},
	}
}

// List returns the patient's documents matching the query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromQuery(r.URL.Query())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	result, err := h.sys.List(r.Context(), r.PathValue("patient_id"), filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, listResponse{Success: true, ListResult: result})
}

// Find returns a single document owned by the patient.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	doc, err := h.sys.Find(r.Context(), r.PathValue("patient_id"), r.PathValue("document_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondOK(w, doc)
}

// Update applies a partial category, subcategory, or facility edit.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var cmd UpdateCommand
	if err := handlers.DecodeJSON(r, &cmd, false); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	doc, err := h.sys.Update(r.Context(), r.PathValue("patient_id"), r.PathValue("document_id"), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondMessage(w, "Document updated", doc)
}
