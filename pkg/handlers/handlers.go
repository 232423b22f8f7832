// Package handlers provides JSON response helpers that wrap payloads in the
// service's {success, ...} envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// ErrInvalidBody is returned by DecodeJSON for unparseable request bodies.
var ErrInvalidBody = errors.New("invalid request body")

// Envelope is the response body shape shared by every JSON endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RespondJSON writes v as JSON with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RespondOK writes a successful envelope carrying data.
func RespondOK(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// RespondMessage writes a successful envelope carrying a message and data.
func RespondMessage(w http.ResponseWriter, message string, data any) {
	RespondJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// RespondError logs err and writes a failure envelope with the given status.
// Server errors are logged at error level; client errors at warn.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}
	RespondJSON(w, status, Envelope{Success: false, Error: err.Error()})
}

// DecodeJSON decodes the request body into v. An empty body leaves v unchanged
// when allowEmpty is set; any other decode failure wraps ErrInvalidBody.
func DecodeJSON(r *http.Request, v any, allowEmpty bool) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Join(ErrInvalidBody, err)
	}
	return nil
}
