package common

import (
	"errors"
	"fmt"
)

// ErrNotFound signals a lookup against an unknown citation or entity
// key. Tracking and linking paths translate it into a false result
// instead of failing the batch.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before any write happens.
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

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProcessingError wraps a failure in a store call or (de)serialization
// step. Work committed before the failure stays committed; callers may
// skip-and-continue rather than abort the batch.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Processingf wraps err as a ProcessingError for operation op.
func Processingf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProcessingError{Op: op, Err: err}
}
