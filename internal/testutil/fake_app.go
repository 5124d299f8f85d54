// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"fmt"

	"github.com/giantswarm/version-matrix/internal/session"
)

// FakeApp is a scripted in-process application release for tests.
type FakeApp struct {
	// VersionString is reported by the launched instance.
	VersionString string

	// State maps state paths to values returned by ReadState.
	State map[string]any

	// Actions are exposed as the instance's action table.
	Actions map[string]session.ActionFunc

	// LaunchErr, when set, is returned from Launch.
	LaunchErr error

	// LaunchPanic, when set, is raised from Launch.
	LaunchPanic any

	// CloseErr is returned from the instance's Close.
	CloseErr error

	// Launches counts Launch calls; Closes counts instance Close calls.
	Launches int
	Closes   int

	// LastOptions stores the options of the most recent launch.
	LastOptions session.LaunchOptions
}

// Launch implements session.Adapter.
func (f *FakeApp) Launch(_ context.Context, opts session.LaunchOptions) (session.Instance, error) {
	f.Launches++
	f.LastOptions = opts
	if f.LaunchPanic != nil {
		panic(f.LaunchPanic)
	}
	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}

	return &session.App{
		VersionString: f.VersionString,
		Actions:       f.Actions,
		State: func(_ context.Context, path string) (any, error) {
			v, ok := f.State[path]
			if !ok {
				return nil, fmt.Errorf("no state at %q", path)
			}
			return v, nil
		},
		OnClose: func() error {
			f.Closes++
			return f.CloseErr
		},
	}, nil
}
