package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/version-matrix/internal/version"
)

// Opener creates sessions. It exclusively owns the Environment: every Open
// resets it to the baseline first, including the very first one.
type Opener struct {
	Env      *Environment
	Launcher Launcher
}

// NewOpener creates an Opener.
func NewOpener(env *Environment, launcher Launcher) *Opener {
	return &Opener{Env: env, Launcher: launcher}
}

// Open resets the environment, enters the install directory and launches the
// application with prompts suppressed, timing the launch as the load time.
// A relative install path on disk is made absolute against the baseline
// directory; the session and the launcher see the absolute path.
//
// A failing entry point yields a *LaunchError. A failing reset yields an
// *EnvironmentResetError.
func (o *Opener) Open(ctx context.Context, d version.Descriptor) (Session, error) {
	if o.Env == nil {
		return nil, &EnvironmentResetError{Err: errors.New("no environment configured")}
	}
	if err := o.Env.Reset(); err != nil {
		return nil, err
	}
	d.InstallPath = o.Env.Resolve(d.InstallPath)

	if err := o.Env.Enter(d.InstallPath, d.InstallPath); err != nil {
		return nil, o.abandon(d, fmt.Errorf("failed to enter install path: %w", err))
	}

	slog.Info("launching version", "version", d.Label, "path", d.InstallPath, "reference", d.IsReference)

	start := time.Now()
	var inst Instance
	err := guard(func() error {
		var err error
		inst, err = o.Launcher.Launch(ctx, d, LaunchOptions{NoPrompts: true})
		return err
	})
	loadTime := time.Since(start)
	if err == nil && inst == nil {
		err = errors.New("launcher returned no instance")
	}
	if err != nil {
		return nil, o.abandon(d, err)
	}

	reported := inst.Version()
	v, err := version.Parse(reported)
	if err != nil {
		_ = guard(inst.Close)
		return nil, o.abandon(d, fmt.Errorf("application reported unusable version: %w", err))
	}

	slog.Info("version launched",
		"version", d.Label,
		"reported", reported,
		"load_time", loadTime,
	)

	return &session{
		desc:     d,
		inst:     inst,
		caps:     inst.Capabilities(),
		ver:      reported,
		resolved: v.Resolved(),
		loadTime: loadTime,
		env:      o.Env,
	}, nil
}

// abandon restores the environment after a failed launch. A failed restore
// takes precedence since it is fatal for the whole matrix.
func (o *Opener) abandon(d version.Descriptor, cause error) error {
	if err := o.Env.Reset(); err != nil {
		return err
	}
	return &LaunchError{Label: d.Label, Err: cause}
}

// WithSession opens a session for d, runs fn and closes the session on every
// exit path.
func WithSession(ctx context.Context, o *Opener, d version.Descriptor, fn func(Session) error) (err error) {
	s, err := o.Open(ctx, d)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			slog.Error("failed to close session", "version", d.Label, "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}
