package documents

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/triage/pkg/handlers"
)

// Domain errors for document operations.
var (
	ErrNotFound      = errors.New("document not found or does not belong to patient")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInvalidUpdate = errors.New("invalid update")
)

// MapHTTPStatus maps document domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrInvalidUpdate),
		errors.Is(err, handlers.ErrInvalidBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
