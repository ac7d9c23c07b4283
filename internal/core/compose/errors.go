// Package compose models the orchestration document produced by the
// simulator and serializes it deterministically.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("compose document is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrNoServices         = errors.New("compose document must define at least one service")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrInvalidDocument    = errors.New("invalid compose document")
)

// ParseError wraps errors with context about where encoding or loading failed.
type ParseError struct {
	Field   string // e.g., "services.edgeHubDev"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
