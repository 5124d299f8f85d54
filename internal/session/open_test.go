package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/testutil"
	"github.com/giantswarm/version-matrix/internal/version"
)

func newOpener(t *testing.T, apps map[string]*testutil.FakeApp) *session.Opener {
	t.Helper()
	env, err := session.CaptureEnvironment()
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Reset() })

	reg := session.NewRegistry()
	for key, app := range apps {
		reg.Register(key, app)
	}
	return session.NewOpener(env, reg)
}

func TestOpenLaunchesWithoutPrompts(t *testing.T) {
	app := &testutil.FakeApp{VersionString: "1.2.3"}
	o := newOpener(t, map[string]*testutil.FakeApp{"v1": app})

	s, err := o.Open(context.Background(), version.Descriptor{Label: "v1", InstallPath: "/nonexistent/v1"})
	require.NoError(t, err)

	assert.True(t, app.LastOptions.NoPrompts)
	assert.Equal(t, "1.2.3", s.Version())
	assert.Equal(t, 10203, s.Resolved())
	assert.GreaterOrEqual(t, s.LoadTime().Nanoseconds(), int64(0))

	require.NoError(t, s.Close())
	assert.Equal(t, 1, app.Closes)

	// Close is idempotent.
	require.NoError(t, s.Close())
	assert.Equal(t, 1, app.Closes)
}

func TestOpenChangesIntoInstallDirectory(t *testing.T) {
	dir := t.TempDir()
	var seen string
	app := &testutil.FakeApp{
		VersionString: "2.0",
		Actions: map[string]session.ActionFunc{
			"pwd": func(context.Context, session.Args) (any, error) {
				wd, err := os.Getwd()
				seen = wd
				return wd, err
			},
		},
	}
	o := newOpener(t, map[string]*testutil.FakeApp{dir: app})

	err := session.WithSession(context.Background(), o, version.Descriptor{Label: "2.0", InstallPath: dir}, func(s session.Session) error {
		_, err := s.InvokeAction(context.Background(), "pwd", nil)
		return err
	})
	require.NoError(t, err)

	resolvedDir, _ := filepath.EvalSymlinks(dir)
	resolvedSeen, _ := filepath.EvalSymlinks(seen)
	assert.Equal(t, resolvedDir, resolvedSeen)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, o.Env.BaseDir(), wd)
}

func TestOpenResolvesRelativeInstallPath(t *testing.T) {
	t.Chdir(t.TempDir())
	rel := filepath.Join("releases", "1.0")
	require.NoError(t, os.MkdirAll(rel, 0o755))

	var seen string
	app := &testutil.FakeApp{
		VersionString: "1.0",
		Actions: map[string]session.ActionFunc{
			"stat": func(context.Context, session.Args) (any, error) {
				seen, _ = os.Getwd()
				return nil, nil
			},
		},
	}
	o := newOpener(t, map[string]*testutil.FakeApp{rel: app})
	want := filepath.Join(o.Env.BaseDir(), rel)

	err := session.WithSession(context.Background(), o, version.Descriptor{Label: "1.0", InstallPath: rel}, func(s session.Session) error {
		assert.Equal(t, want, s.Descriptor().InstallPath)
		info, err := os.Stat(s.Descriptor().InstallPath)
		require.NoError(t, err, "install path is usable after entering it")
		assert.True(t, info.IsDir())
		_, err = s.InvokeAction(context.Background(), "stat", nil)
		return err
	})
	require.NoError(t, err)

	resolvedWant, _ := filepath.EvalSymlinks(want)
	resolvedSeen, _ := filepath.EvalSymlinks(seen)
	assert.Equal(t, resolvedWant, resolvedSeen)
}

func TestOpenLaunchErrors(t *testing.T) {
	tests := []struct {
		name string
		app  *testutil.FakeApp
	}{
		{"entry point fails", &testutil.FakeApp{LaunchErr: errors.New("boom")}},
		{"entry point panics", &testutil.FakeApp{LaunchPanic: "segfault"}},
		{"bad version string", &testutil.FakeApp{VersionString: "latest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOpener(t, map[string]*testutil.FakeApp{"v": tt.app})

			_, err := o.Open(context.Background(), version.Descriptor{Label: "v"})
			require.Error(t, err)
			assert.True(t, session.IsLaunchError(err))
			assert.False(t, session.IsEnvironmentResetError(err))

			// Environment is released: the next open succeeds.
			ok := &testutil.FakeApp{VersionString: "1.0"}
			o.Launcher.(*session.Registry).Register("ok", ok)
			s, err := o.Open(context.Background(), version.Descriptor{Label: "ok"})
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}
}

func TestOpenUnknownAdapter(t *testing.T) {
	o := newOpener(t, nil)
	_, err := o.Open(context.Background(), version.Descriptor{Label: "missing"})
	require.Error(t, err)
	assert.True(t, session.IsLaunchError(err))
	assert.Contains(t, err.Error(), "no adapter registered")
}

func TestOpenWithoutEnvironment(t *testing.T) {
	o := session.NewOpener(nil, session.NewRegistry())
	_, err := o.Open(context.Background(), version.Descriptor{Label: "x"})
	assert.True(t, session.IsEnvironmentResetError(err))
}

func TestActionFailureBoundary(t *testing.T) {
	app := &testutil.FakeApp{
		VersionString: "1.0",
		State:         map[string]any{"file.name": "beam.dat"},
		Actions: map[string]session.ActionFunc{
			"fails":  func(context.Context, session.Args) (any, error) { return nil, errors.New("bad input") },
			"panics": func(context.Context, session.Args) (any, error) { panic("index out of range") },
			"echo":   func(_ context.Context, a session.Args) (any, error) { return a["v"], nil },
		},
	}
	o := newOpener(t, map[string]*testutil.FakeApp{"v": app})
	ctx := context.Background()

	err := session.WithSession(ctx, o, version.Descriptor{Label: "v"}, func(s session.Session) error {
		var actionErr *session.ActionError

		_, err := s.InvokeAction(ctx, "fails", nil)
		require.ErrorAs(t, err, &actionErr)
		assert.Equal(t, "fails", actionErr.Action)

		_, err = s.InvokeAction(ctx, "panics", nil)
		require.ErrorAs(t, err, &actionErr)
		var panicErr *session.PanicError
		assert.ErrorAs(t, err, &panicErr)

		_, err = s.InvokeAction(ctx, "nope", nil)
		assert.ErrorIs(t, err, session.ErrUnknownAction)

		v, err := s.InvokeAction(ctx, "echo", session.Args{"v": 42})
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		name, err := s.ReadState(ctx, "file.name")
		require.NoError(t, err)
		assert.Equal(t, "beam.dat", name)

		_, err = s.ReadState(ctx, "missing")
		assert.ErrorAs(t, err, &actionErr)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, app.Closes)
}

func TestWithSessionClosesOnError(t *testing.T) {
	app := &testutil.FakeApp{VersionString: "1.0", CloseErr: errors.New("window stuck")}
	o := newOpener(t, map[string]*testutil.FakeApp{"v": app})

	runErr := errors.New("suite failed")
	err := session.WithSession(context.Background(), o, version.Descriptor{Label: "v"}, func(session.Session) error {
		return runErr
	})

	assert.ErrorIs(t, err, runErr)
	assert.Contains(t, err.Error(), "window stuck")
	assert.Equal(t, 1, app.Closes)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, o.Env.BaseDir(), wd)
}

func TestActionsAfterCloseFail(t *testing.T) {
	app := &testutil.FakeApp{VersionString: "1.0"}
	o := newOpener(t, map[string]*testutil.FakeApp{"v": app})

	s, err := o.Open(context.Background(), version.Descriptor{Label: "v"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.InvokeAction(context.Background(), "anything", nil)
	assert.Error(t, err)
	_, err = s.ReadState(context.Background(), "anything")
	assert.Error(t, err)
}
