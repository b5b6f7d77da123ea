// Package response provides shared JSON response helpers for HTTP handlers.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/quickshare/service/internal/apperr"
)

// Envelope is the standard API response envelope.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON writes a JSON-encoded payload with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 response with data.
func OK(w http.ResponseWriter, message string, data interface{}) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Error writes an error response with the given status and message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Message: message})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, message)
}

// InternalError writes a 500 response with a generic message.
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, apperr.MsgInternal)
}

// Status maps an error kind to its HTTP status.
func Status(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindConfiguration:
		return http.StatusBadRequest
	case apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAccessDenied:
		return http.StatusUnauthorized
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindUnsupportedPreview:
		return http.StatusForbidden
	case apperr.KindUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// FromError writes err as an error envelope. Storage and internal failures
// are logged with their cause and answered with a generic message.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unclassified error")
		InternalError(w)
		return
	}

	status := Status(e.Kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("kind", e.Kind.String()).Msg("request failed")
	}
	Error(w, status, e.Message)
}
