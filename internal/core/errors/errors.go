package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Envelope decoding
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrMethodRequired    = errors.New("envelope method is required")
	ErrMissingField      = errors.New("envelope field missing or has the wrong type")

	// Directories
	ErrRegionNotFound   = errors.New("region not found")
	ErrEstateNotFound   = errors.New("estate not found")
	ErrSettingsNotFound = errors.New("estate settings not found")
	ErrSceneNotHosted   = errors.New("scene is not hosted by this process")

	// Domain events
	ErrUserIDRequired      = errors.New("user ID is required")
	ErrRegionIDRequired    = errors.New("region ID is required")
	ErrEstateIDRequired    = errors.New("estate ID is required")
	ErrEstateNameTooLong   = errors.New("estate name exceeds maximum length")
	ErrInvalidStatusChange = errors.New("invalid status change")

	// Dispatch
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	ErrQueueFull        = errors.New("dispatch queue is full")

	// Generic
	ErrNotFound     = errors.New("resource not found")
	ErrInternal     = errors.New("internal server error")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("action forbidden")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewValidationError(err error, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		StatusCode: 422,
		Details:    details,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// FieldError reports which envelope field could not be read.
type FieldError struct {
	Method string
	Field  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q missing or invalid", e.Method, e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrMissingField
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
