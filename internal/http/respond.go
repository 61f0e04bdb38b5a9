package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"billtracker/internal/auth"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/notify"
)

// Error codes returned in the error envelope.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeValidation    = "VALIDATION_FAILED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeRemoteFailure = "REMOTE_FAILURE"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeNotReady      = "SERVICE_UNAVAILABLE"
	maxRequestBodyBytes  = 64 << 10
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, statusCode int, code, message string, details any) {
	respondJSON(w, statusCode, errorResponse{Error: APIError{Code: code, Message: message, Details: details}})
}

// parseJSONBody decodes a single JSON object, rejecting unknown fields.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// mapError maps domain errors to a status code and error code.
func mapError(err error) (int, string) {
	var fieldErrs *core.FieldErrors
	var remoteErr *core.RemoteError

	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrCategoryRequired),
		errors.Is(err, core.ErrCategoryTooShort),
		errors.Is(err, core.ErrCategoryTooLong),
		errors.Is(err, core.ErrCategoryInvalidChars),
		errors.Is(err, notify.ErrInvalidLookahead),
		errors.Is(err, notify.ErrInvalidPermission),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case errors.Is(err, core.ErrNotAuthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case errors.Is(err, notify.ErrPermissionDenied):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, core.ErrCategoryExists),
		errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, core.ErrDuplicate):
		return http.StatusConflict, ErrCodeConflict
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway, ErrCodeRemoteFailure
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// writeError responds with the mapped status. Server-side failures are logged
// and their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := mapError(err)
	message := err.Error()

	var details any
	var fieldErrs *core.FieldErrors
	if errors.As(err, &fieldErrs) {
		details = fieldErrs
		message = "please correct the highlighted fields"
	}

	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, op, nil)
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}
	}
	respondError(w, status, code, message, details)
}
