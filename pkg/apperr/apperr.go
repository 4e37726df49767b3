// Package apperr holds the error kinds shared by the services and their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUpstream           = errors.New("upstream error")
	ErrConfig             = errors.New("configuration error")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HTTPStatus maps an error to the status code the handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrConfig):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NotFound returns an ErrNotFound carrying a human readable message.
func NotFound(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

// Precondition returns an ErrPreconditionFailed carrying a human readable message.
func Precondition(msg string) error {
	return &kindError{kind: ErrPreconditionFailed, msg: msg}
}

// Upstream wraps a failed call to an external service.
func Upstream(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}
