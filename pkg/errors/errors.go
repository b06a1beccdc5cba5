package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
//
// Admission and state-transition errors are returned as-is to the
// immediate caller and are never retried automatically. Only transient
// store failures (ErrInternal wrapping a driver error) are candidates
// for caller-side retry, and only on operations that are idempotent.
var (
	ErrDeadlineExceeded = New("DEADLINE_EXCEEDED", http.StatusPreconditionFailed, "enrollment closed: selection time has passed")
	ErrCapacityExceeded = New("CAPACITY_EXCEEDED", http.StatusConflict, "waitlist is full")
	ErrLocationRequired = New("LOCATION_REQUIRED", http.StatusBadRequest, "event requires a location to enroll")
	ErrAlreadyEnrolled  = New("ALREADY_ENROLLED", http.StatusConflict, "entrant already enrolled")
	ErrNotSelected      = New("NOT_SELECTED", http.StatusConflict, "entrant was not selected")
	ErrInvariant        = New("INVARIANT_VIOLATION", http.StatusInternalServerError, "entrant list invariant violated")
	ErrNotFound         = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal         = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss        = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
