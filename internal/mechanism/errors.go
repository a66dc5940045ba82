package mechanism

import (
	"errors"
	"fmt"
)

// ErrValidation is the class of every malformed-mechanism error.
var ErrValidation = errors.New("mechanism: validation failed")

// ValidationError names the offending field of the description.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mechanism: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
