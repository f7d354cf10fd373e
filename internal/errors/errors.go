package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a riskai error code.
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "INVALID_INPUT" // 400
	ErrNotFound     ErrorCode = "NOT_FOUND"     // 404
	ErrUpstream     ErrorCode = "UPSTREAM"      // 502
	ErrAuth         ErrorCode = "AUTH"          // 401
	ErrStorage      ErrorCode = "STORAGE"       // 500
	ErrInternal     ErrorCode = "INTERNAL"      // 500
)

// Error is a structured error with code, HTTP status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewInvalidInput creates a 400 error for content that cannot be
// normalized or fingerprinted.
func NewInvalidInput(msg string) *Error {
	return &Error{
		Code:    ErrInvalidInput,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewStorage creates a 500 error for a durable-store failure. Callers
// treat these as cache misses and continue without caching.
func NewStorage(op string, cause error) *Error {
	return &Error{
		Code:    ErrStorage,
		Status:  500,
		Message: fmt.Sprintf("storage %s failed: %v", op, cause),
		Details: map[string]any{"op": op},
		Cause:   cause,
	}
}

// NewUpstream creates a 502 error for an LLM backend failure.
func NewUpstream(msg string, cause error) *Error {
	return &Error{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Cause:   cause,
	}
}

// NewAuth creates a 401 error for credential problems with the LLM backend.
func NewAuth(msg string) *Error {
	return &Error{
		Code:    ErrAuth,
		Status:  401,
		Message: msg,
	}
}

// NewInternal creates a 500 error wrapping an unexpected failure.
func NewInternal(cause error) *Error {
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: "internal error",
		Cause:   cause,
	}
}

// IsCode reports whether err is a riskai Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// IsInvalidInput reports whether err is an INVALID_INPUT error.
func IsInvalidInput(err error) bool { return IsCode(err, ErrInvalidInput) }

// IsStorage reports whether err is a STORAGE error.
func IsStorage(err error) bool { return IsCode(err, ErrStorage) }

// IsAuth reports whether err is an AUTH error.
func IsAuth(err error) bool { return IsCode(err, ErrAuth) }
