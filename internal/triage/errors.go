package triage

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/triage/pkg/handlers"
)

// ErrInvalidBatch rejects a batch as a whole.
var ErrInvalidBatch = errors.New("invalid triage batch")

// Item error messages.
const (
	msgNoFields = "No triage fields supplied"
)

// MapHTTPStatus maps triage domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidBatch) || errors.Is(err, handlers.ErrInvalidBody) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
