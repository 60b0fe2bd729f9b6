package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors. Input errors reach callers wrapped in a ValidationError
// that names the offending field.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSex         = errors.New("invalid sex")
	ErrInvalidRedFlag     = errors.New("invalid red flag type")
	ErrInvalidPainScore   = errors.New("pain severity must be between 0 and 10")
	ErrInvalidYearOfBirth = errors.New("year of birth is out of range")
	ErrInvalidAge         = errors.New("age must be between 0 and 150")
)

// API error codes.
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrValidation     = "VALIDATION_ERROR"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrAuthentication = "AUTHENTICATION_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrUnavailable    = "UNAVAILABLE"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

var statusByCode = map[string]int{
	ErrInvalidInput:   http.StatusBadRequest,
	ErrValidation:     http.StatusBadRequest,
	ErrNotFoundCode:   http.StatusNotFound,
	ErrAuthentication: http.StatusUnauthorized,
	ErrRateLimit:      http.StatusTooManyRequests,
	ErrUnavailable:    http.StatusServiceUnavailable,
	ErrInternalServer: http.StatusInternalServerError,
}

// APIError is the JSON body of every failed HTTP request.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the status code that accompanies e. Unknown codes map
// to 500.
func (e *APIError) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewAPIError stamps an error body with the current time.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError reports a rejected input field. Field is a dotted path
// into the request, e.g. "encounter.red_flags[1]".
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`

	cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap exposes the sentinel the error was built from, if any.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// NewValidationError builds a ValidationError with a free-form message.
func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// InvalidField builds a ValidationError from one of the sentinel errors so
// callers can match it with errors.Is.
func InvalidField(field string, cause error, value any) *ValidationError {
	return &ValidationError{Field: field, Message: cause.Error(), Value: value, cause: cause}
}
