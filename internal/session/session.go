// Package session opens isolated, short-lived instances of one installed
// application release and exposes their capability surface to the suite runner.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/giantswarm/version-matrix/internal/version"
)

// Args are the arguments passed to a named action.
type Args map[string]any

// ActionFunc performs one named, user-level operation on a running application.
type ActionFunc func(ctx context.Context, args Args) (any, error)

// StateFunc reads a named piece of application state, e.g. "profiles.x".
type StateFunc func(ctx context.Context, path string) (any, error)

// Capabilities is the explicit surface an adapter exposes for one running
// application: a table of actions plus a state reader.
type Capabilities struct {
	Actions map[string]ActionFunc
	State   StateFunc
}

// ActionNames returns the sorted action names.
func (c Capabilities) ActionNames() []string {
	names := make([]string, 0, len(c.Actions))
	for name := range c.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instance is a running application as returned by a Launcher.
type Instance interface {
	// Version returns the application's self-reported version string.
	Version() string
	// Capabilities returns the action table and state reader.
	Capabilities() Capabilities
	// Close terminates every window, process or resource of the instance.
	Close() error
}

// LaunchOptions configures the application entry point.
type LaunchOptions struct {
	// NoPrompts suppresses file pickers, confirmation dialogs and any other
	// interactive prompt.
	NoPrompts bool
}

// Launcher starts the application installed for one version descriptor.
type Launcher interface {
	Launch(ctx context.Context, d version.Descriptor, opts LaunchOptions) (Instance, error)
}

// Session is one live, isolated instantiation of the application for one
// version descriptor. Sessions are never reused.
type Session interface {
	Descriptor() version.Descriptor
	// Version is the version string the application reported.
	Version() string
	// Resolved is the integer encoding of Version used for applicability checks.
	Resolved() int
	// LoadTime is the wall-clock time spent in the entry point.
	LoadTime() time.Duration
	InvokeAction(ctx context.Context, name string, args Args) (any, error)
	ReadState(ctx context.Context, path string) (any, error)
	Close() error
}

type session struct {
	desc     version.Descriptor
	inst     Instance
	caps     Capabilities
	ver      string
	resolved int
	loadTime time.Duration
	env      *Environment
	closed   bool
}

func (s *session) Descriptor() version.Descriptor { return s.desc }
func (s *session) Version() string                { return s.ver }
func (s *session) Resolved() int                  { return s.resolved }
func (s *session) LoadTime() time.Duration        { return s.loadTime }

func (s *session) InvokeAction(ctx context.Context, name string, args Args) (any, error) {
	if s.closed {
		return nil, &ActionError{Action: name, Err: errors.New("session is closed")}
	}
	fn, ok := s.caps.Actions[name]
	if !ok {
		return nil, &ActionError{Action: name, Err: ErrUnknownAction}
	}
	if args == nil {
		args = Args{}
	}

	var out any
	err := guard(func() error {
		var err error
		out, err = fn(ctx, args)
		return err
	})
	if err != nil {
		return nil, &ActionError{Action: name, Err: err}
	}
	return out, nil
}

func (s *session) ReadState(ctx context.Context, path string) (any, error) {
	action := "read " + path
	if s.closed {
		return nil, &ActionError{Action: action, Err: errors.New("session is closed")}
	}
	if s.caps.State == nil {
		return nil, &ActionError{Action: action, Err: errors.New("application exposes no state")}
	}

	var out any
	err := guard(func() error {
		var err error
		out, err = s.caps.State(ctx, path)
		return err
	})
	if err != nil {
		return nil, &ActionError{Action: action, Err: err}
	}
	return out, nil
}

// Close force-closes the application instance and restores the environment,
// even when earlier steps failed. It is safe to call more than once.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	closeErr := guard(s.inst.Close)
	if closeErr != nil {
		closeErr = fmt.Errorf("failed to close version %s: %w", s.desc.Label, closeErr)
	}

	var resetErr error
	if s.env != nil {
		resetErr = s.env.Reset()
	}

	return errors.Join(closeErr, resetErr)
}

// guard runs fn, converting a panic in application code into a PanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
