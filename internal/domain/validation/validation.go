// Package validation holds the error type returned for malformed input.
package validation

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error reports a malformed input field. It is always recoverable by the
// caller and is never retried.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// New returns a validation error for field.
func New(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *Error.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}
