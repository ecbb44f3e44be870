package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type ErrorCode string

const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrValidation    ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest    ErrorCode = "BAD_REQUEST"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
	ErrUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error is the JSON error body returned by every handler.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Status  int       `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NotFound(resource string) *Error {
	return &Error{Code: ErrNotFound, Message: resource + " not found", Status: http.StatusNotFound}
}

func Conflict(message string) *Error {
	return &Error{Code: ErrConflict, Message: message, Status: http.StatusConflict}
}

func ValidationError(field, message string) *Error {
	return &Error{Code: ErrValidation, Message: message, Field: field, Status: http.StatusUnprocessableEntity}
}

func BadRequest(message string) *Error {
	return &Error{Code: ErrBadRequest, Message: message, Status: http.StatusBadRequest}
}

func RateLimited(message string) *Error {
	return &Error{Code: ErrRateLimited, Message: message, Status: http.StatusTooManyRequests}
}

func InternalError(message string) *Error {
	return &Error{Code: ErrInternalError, Message: message, Status: http.StatusInternalServerError}
}

func Unavailable(message string) *Error {
	return &Error{Code: ErrUnavailable, Message: message, Status: http.StatusServiceUnavailable}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (r *router) writeError(w http.ResponseWriter, e *Error, cause error) {
	if e.Status >= http.StatusInternalServerError {
		r.log.Error("api error", zap.String("code", string(e.Code)), zap.String("message", e.Message), zap.Error(cause))
	} else {
		r.log.Debug("api error", zap.String("code", string(e.Code)), zap.String("message", e.Message), zap.String("field", e.Field))
	}
	writeJSON(w, e.Status, e)
}
