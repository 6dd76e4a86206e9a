package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/policy"
)

// Error codes returned in the envelope.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeValidation    = "VALIDATION_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// ErrorBody is the payload of every non-2xx API response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody as {"error": {...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// FieldError is one entry of a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone; all that is left is to note it.
		log.Warn().Err(err).Int("status", status).Msg("Failed to encode response")
	}
}

func ErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
		Details:   details,
	}})
}

func Error(w http.ResponseWriter, status int, code, message string) {
	ErrorWithDetails(w, status, code, message, nil)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, CodeNotFound, message)
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, CodeBadRequest, message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, CodeInternalError, message)
}

// ValidationFailed reports err as 422. Constructor errors are broken down
// per field.
func ValidationFailed(w http.ResponseWriter, err error) {
	var details []FieldError

	var all policy.ValidationErrors
	var one *policy.ValidationError
	switch {
	case errors.As(err, &all):
		for _, ve := range all {
			details = append(details, FieldError{Field: ve.Field, Message: ve.Message})
		}
	case errors.As(err, &one):
		details = append(details, FieldError{Field: one.Field, Message: one.Message})
	}

	ErrorWithDetails(w, http.StatusUnprocessableEntity, CodeValidation, err.Error(), details)
}
