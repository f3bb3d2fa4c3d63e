package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds a store operation can surface.
// Handlers map these to HTTP statuses; anything else is treated as an
// internal store failure and never leaks to the caller.
var (
	// ErrNotFound means a referenced id does not resolve to an existing node.
	ErrNotFound = errors.New("not found")

	// ErrOutOfStock means a purchase hit a product with zero stock. The
	// conditional write matched no records and nothing changed.
	ErrOutOfStock = errors.New("out of stock")

	// ErrInvalidCredentials covers every credential failure uniformly, so a
	// response never reveals which half of the pair was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden means the caller is authenticated but not allowed to read
	// the target resource (e.g. another user's history).
	ErrForbidden = errors.New("forbidden")

	// ErrEmailTaken means registration hit an existing email.
	ErrEmailTaken = errors.New("user already exists")
)

// ValidationError reports missing or malformed required input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
