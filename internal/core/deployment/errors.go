package deployment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrInvalidManifest indicates the manifest is not a JSON object tree.
	ErrInvalidManifest = errors.New("invalid deployment manifest")

	// ErrMissingSection indicates a required manifest section is absent.
	ErrMissingSection = errors.New("missing manifest section")

	// ErrUnsupportedRestartPolicy indicates a module restart policy outside never/on-failure/always.
	ErrUnsupportedRestartPolicy = errors.New("unsupported restart policy")

	// ErrInvalidCreateOptions indicates a module's create options could not be parsed or mapped.
	ErrInvalidCreateOptions = errors.New("invalid create options")

	// ErrMissingConnectionString indicates no connection string was injected for a module.
	ErrMissingConnectionString = errors.New("missing connection string")
)

// =============================================================================
// ModuleError
// =============================================================================

// ModuleError ties a composition failure to the module that caused it.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

func moduleError(module string, err error) *ModuleError {
	return &ModuleError{Module: module, Err: err}
}
