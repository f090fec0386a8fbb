package history

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when an operation that needs an existing item
	// (as opposed to the idempotent removals) cannot find it.
	ErrNotFound = errors.New("not found")

	// ErrInvalidBackup is returned by Import for documents that carry none
	// of the history, snippets or settings sections.
	ErrInvalidBackup = errors.New("Invalid backup file format")
)

// ValidationError reports user input rejected before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface. The message is meant to be shown to
// the user as is.
func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
