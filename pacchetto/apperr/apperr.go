// Package apperr classifies the errors returned by the domain packages so
// transports can map them to status codes without knowing where they came from.
package apperr

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStorage      = errors.New("storage failure")
)

// kindError attaches one of the sentinels above to err. Both the stdlib and
// cockroachdb errors.Is see the sentinel through Is, and the cause through Unwrap.
type kindError struct {
	cause error
	kind  error
}

func (e *kindError) Error() string { return e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

func withKind(cause, kind error) error {
	return &kindError{cause: cause, kind: kind}
}

// Validation returns an error marked as ErrValidation whose message is shown
// to the caller verbatim.
func Validation(msg string) error {
	return withKind(errors.New(msg), ErrValidation)
}

// NotFound returns an error marked as ErrNotFound.
func NotFound(format string, args ...any) error {
	return withKind(errors.Newf(format, args...), ErrNotFound)
}

// Conflict returns an error marked as ErrConflict.
func Conflict(msg string) error {
	return withKind(errors.New(msg), ErrConflict)
}

func Unauthorized(msg string) error {
	return withKind(errors.New(msg), ErrUnauthorized)
}

// Storage wraps a persistence failure. A nil err stays nil.
func Storage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return withKind(errors.Wrap(err, msg), ErrStorage)
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrConflict):
		return "conflict"

	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"

	case errors.Is(err, ErrStorage):
		return "storage"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code the HTTP API answers with.
// Double confirmation is a conflict but is reported as 400, like any other
// caller mistake.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "validation", "conflict":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the message of err may be returned to the caller.
func Public(err error) bool {
	switch Kind(err) {
	case "validation", "not_found", "conflict", "unauthorized":
		return true
	default:
		return false
	}
}
