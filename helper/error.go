package helper

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransientStore marks a connectivity or timeout failure of a store call
	// that survived all retry attempts.
	ErrTransientStore = errors.New("transient store error")

	// ErrValidation marks a malformed input record. The record is skipped.
	ErrValidation = errors.New("validation error")

	// ErrConfirmationUnavailable marks a failed confirmation oracle call.
	// Callers treat it as a "no" answer.
	ErrConfirmationUnavailable = errors.New("confirmation unavailable")

	// ErrCanceled marks an operation aborted by context cancellation or deadline.
	ErrCanceled = errors.New("operation canceled")
)

// Error wraps an error with the operation that failed.
type Error struct {
	Operation string
	Err       error
}

// NewError wraps err with the name of the failed operation.
// It returns nil if err is nil.
func NewError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Operation: operation,
		Err:       err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates an ErrValidation with a description of the invalid field.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err was caused by a context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
