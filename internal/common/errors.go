package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Screening error taxonomy. Task failures carry one of these wrapped,
// and the HTTP layer maps them onto status codes.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamFailure     = errors.New("upstream task failed")
	ErrTimeout             = errors.New("task deadline exceeded")
	ErrMalformedEntityData = errors.New("malformed entity data")
	ErrMissingDependency   = errors.New("dependency output missing")
	ErrUnreachable         = errors.New("server unreachable")
	ErrInternal            = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps taxonomy errors onto HTTP response codes.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedEntityData):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingDependency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
