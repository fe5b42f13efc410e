// File: internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for an identifier.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidCredentials is deliberately generic; it never says which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOffline is returned by operations that need the remote backend.
	ErrOffline = errors.New("no database connection")
)

// ValidationError reports a payload that does not fit its collection schema.
type ValidationError struct {
	Collection Collection
	Field      string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s record: %s", e.Collection, e.Message)
	}
	return fmt.Sprintf("invalid %s record: %s %s", e.Collection, e.Field, e.Message)
}

func NewValidationError(c Collection, field, msg string) *ValidationError {
	return &ValidationError{Collection: c, Field: field, Message: msg}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
