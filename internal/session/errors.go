package session

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is wrapped by ActionError when a session has no action of
// the requested name.
var ErrUnknownAction = errors.New("unknown action")

// ErrEnvironmentBusy is returned when a session is opened while another one
// still owns the process environment.
var ErrEnvironmentBusy = errors.New("environment is owned by another session")

// LaunchError reports that the application entry point failed for one version.
// It abandons that version's column; the matrix continues with the next version.
type LaunchError struct {
	Label string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch version %s: %v", e.Label, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ActionError reports that a named action or state read failed or panicked.
// The runner recovers it as a Fail verdict for the test case that triggered it.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// EnvironmentResetError reports that the baseline working directory or search
// path could not be restored. Any later result could be contaminated by the
// previous version, so the whole matrix run stops.
type EnvironmentResetError struct {
	Err error
}

func (e *EnvironmentResetError) Error() string {
	return fmt.Sprintf("failed to reset environment: %v", e.Err)
}

func (e *EnvironmentResetError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from application code.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsLaunchError reports whether err is or wraps a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// IsEnvironmentResetError reports whether err is or wraps an EnvironmentResetError.
func IsEnvironmentResetError(err error) bool {
	var re *EnvironmentResetError
	return errors.As(err, &re)
}
