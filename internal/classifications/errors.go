package classifications

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/pkg/handlers"
)

// Domain errors for classification operations.
var (
	ErrPredictor      = errors.New("predictor failure")
	ErrConflict       = errors.New("document was modified concurrently")
	ErrInvalidRequest = errors.New("invalid classification request")
)

// MapHTTPStatus maps classification domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, documents.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, handlers.ErrInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPredictor):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// itemError renders err as a bulk item message.
func itemError(err error) string {
	if errors.Is(err, documents.ErrNotFound) {
		return documents.NotFoundMessage
	}
	return err.Error()
}
