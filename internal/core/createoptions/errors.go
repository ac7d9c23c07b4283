package createoptions

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidJSON is returned when reassembled create options are not a JSON object.
	ErrInvalidJSON = errors.New("invalid create options JSON")

	// ErrMissingKey is returned when a transform needs a sub-field that is absent.
	ErrMissingKey = errors.New("missing key")

	// ErrInvalidValue is returned when a field is present but semantically wrong.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidType is returned when a field has the wrong JSON type.
	ErrInvalidType = errors.New("invalid type")
)

// OptionError describes a create option that could not be mapped.
type OptionError struct {
	Key     string // compose key, e.g. "healthcheck"
	Field   string // create option path, e.g. "HostConfig.RestartPolicy"
	Message string
	Err     error
}

func (e *OptionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Message)
	}
	return e.Message
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

// NewOptionError creates a new OptionError.
func NewOptionError(field, message string, err error) *OptionError {
	return &OptionError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

func missingKey(field, key string) *OptionError {
	return NewOptionError(field, fmt.Sprintf("missing key %s in %s", key, field), ErrMissingKey)
}

func invalidType(field, want string) *OptionError {
	return NewOptionError(field, fmt.Sprintf("%s should be %s", field, want), ErrInvalidType)
}

func invalidValue(field, message string) *OptionError {
	return NewOptionError(field, message, ErrInvalidValue)
}
