package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a looked-up object does not exist
	// or is not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller's role does not permit
	// the attempted operation. Ownership failures surface as not-found
	// instead; resources are invisible across owners.
	ErrForbidden = errors.New("permission denied")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// TransportError wraps a failure of the outbound email transport.
// The reminder dispatch sweep swallows these per-message; everything
// else propagates.
type TransportError struct {
	Err error
}

func NewTransportError(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}

func (err TransportError) Error() string {
	return fmt.Sprintf("email transport: %v", err.Err)
}

func (err TransportError) Unwrap() error { return err.Err }

func IsTransportError(err error) bool {
	_, ok := errors.Cause(err).(*TransportError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
