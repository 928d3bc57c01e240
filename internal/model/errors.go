package model

import "errors"

// Sentinel errors shared across the store, catalog and API layers.
var (
	// ErrNotFound reports an unknown id or code, or one owned by another tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports malformed input. Reason is safe to show to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Invalid returns a ValidationError with the given reason.
func Invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
