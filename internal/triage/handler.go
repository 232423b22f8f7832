package triage

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/pkg/handlers"
	"github.com/JaimeStill/triage/pkg/routes"
)

// Handler provides the HTTP endpoint for triage batches.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "triage"),
	}
}

// Routes returns the route group definition for triage endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:  documents.Prefix + "/triage",
		Tags:    []string{"Triage"},
		Schemas: schemas,
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/batch", Handler: h.ApplyBatch, OpenAPI: batchOp},
		},
	}
}

// ApplyBatch applies a batch of triage decisions.
func (h *Handler) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	var cmd BatchCommand
	if err := handlers.DecodeJSON(r, &cmd, false); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.ApplyBatch(r.Context(), r.PathValue("patient_id"), cmd.Updates)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondOK(w, result)
}
