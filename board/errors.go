package board

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrBoardNotFound  = fmt.Errorf("board %w", ErrNotFound)
	ErrRowNotFound    = fmt.Errorf("row %w", ErrNotFound)
	ErrPersonNotFound = fmt.Errorf("person %w", ErrNotFound)
)

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Required returns a ValidationError for a missing field.
func Required(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
