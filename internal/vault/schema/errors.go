package schema

import (
	"errors"
	"fmt"
)

// ErrInvalid is matched by every ValidationError:
//
//	if errors.Is(err, schema.ErrInvalid) {
//	    // bad input, do not retry
//	}
var ErrInvalid = errors.New("invalid input")

// ValidationError reports a malformed record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps an I/O or network failure raised by a backend.
//
// The Sync Queue retries batches that fail with a TransportError and the
// Migration Controller records them per session. Everywhere else they
// propagate to the caller unchanged.
type TransportError struct {
	// Backend is the adapter kind that failed ("local" or "remote").
	Backend string
	// Op names the adapter operation, e.g. "save session".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err unless it is nil or already a TransportError
// or ValidationError.
func NewTransportError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, ErrInvalid) {
		return err
	}
	return &TransportError{Backend: backend, Op: op, Err: err}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
