// Package apperrors defines the error taxonomy shared by services and the
// HTTP layer. Services return *AppError values; the echo error handler maps
// the Type to a status code.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type classifies an application error.
type Type string

const (
	TypeValidation   Type = "VALIDATION"
	TypeNotFound     Type = "NOT_FOUND"
	TypeConflict     Type = "CONFLICT"
	TypeUnauthorized Type = "UNAUTHORIZED"
	TypeForbidden    Type = "FORBIDDEN"
	TypeInternal     Type = "INTERNAL"
)

// AppError is an error with a classification and a user-facing message.
type AppError struct {
	Type    Type
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Validation reports a missing/invalid field or an illegal state transition.
func Validation(format string, args ...interface{}) *AppError {
	return &AppError{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an entity that is missing or outside the caller's hospital.
func NotFound(entity string) *AppError {
	return &AppError{Type: TypeNotFound, Message: entity + " not found"}
}

// Conflict reports duplicates and lost updates.
func Conflict(format string, args ...interface{}) *AppError {
	return &AppError{Type: TypeConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Type: TypeUnauthorized, Message: msg}
}

func Forbidden(msg string) *AppError {
	return &AppError{Type: TypeForbidden, Message: msg}
}

// Internal wraps an unexpected failure such as a storage error.
func Internal(msg string, err error) *AppError {
	return &AppError{Type: TypeInternal, Message: msg, Err: err}
}

// ErrConcurrentUpdate is returned by repositories when a conditional update
// matched no row because the pre-read version or state changed underneath.
var ErrConcurrentUpdate = errors.New("row modified concurrently")

// ErrNotFound is returned by repositories when no live row matches.
var ErrNotFound = errors.New("row not found")

// IsType reports whether err is an *AppError of type t.
func IsType(err error, t Type) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Type == t
	}
	return false
}

// HTTPStatus maps an error to its HTTP status code. Conflicts are reported as
// 400 with a descriptive message, matching the rest of the validation family.
func HTTPStatus(err error) int {
	var ae *AppError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Type {
	case TypeValidation, TypeConflict:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// FromRepo translates the repository sentinels into typed errors. Any other
// error is treated as an unexpected storage failure.
func FromRepo(err error, entity string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound(entity)
	case errors.Is(err, ErrConcurrentUpdate):
		return Conflict("%s was modified concurrently, reload and retry", entity)
	default:
		return Internal("storage failure", err)
	}
}
