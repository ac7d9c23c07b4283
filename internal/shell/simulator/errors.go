package simulator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotSetup is returned by every command that needs the settings
	// written by Setup.
	ErrNotSetup = errors.New("simulator is not set up")

	// ErrNoEngine is returned when an operation needs the container engine
	// and the manager was built without one.
	ErrNoEngine = errors.New("container engine client is not configured")
)

// RegistriesLoginError aggregates the registries that rejected a login.
type RegistriesLoginError struct {
	Registries []string
	Errs       []error
}

func (e *RegistriesLoginError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("failed to login %s: %s", strings.Join(e.Registries, ", "), strings.Join(msgs, "; "))
}

func (e *RegistriesLoginError) Unwrap() []error {
	return e.Errs
}

// StopError reports the two independent halves of Stop.
type StopError struct {
	ComposeErr error
	LabelErr   error
}

func (e *StopError) Error() string {
	var parts []string
	if e.ComposeErr != nil {
		parts = append(parts, "compose down: "+e.ComposeErr.Error())
	}
	if e.LabelErr != nil {
		parts = append(parts, "remove labelled containers: "+e.LabelErr.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *StopError) Unwrap() []error {
	var errs []error
	if e.ComposeErr != nil {
		errs = append(errs, e.ComposeErr)
	}
	if e.LabelErr != nil {
		errs = append(errs, e.LabelErr)
	}
	return errs
}
