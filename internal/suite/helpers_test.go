package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/version"
)

// stubSession is a scripted session. Unknown actions and state paths fail the
// way a real session reports them, as *session.ActionError.
type stubSession struct {
	desc     version.Descriptor
	version  string
	loadTime time.Duration
	actions  map[string]session.ActionFunc
	state    map[string]any
	invoked  []string
}

func newStub(label, v string) *stubSession {
	return &stubSession{
		desc:    version.Descriptor{Label: label, InstallPath: "/nonexistent/" + label},
		version: v,
		state:   map[string]any{},
		actions: map[string]session.ActionFunc{},
	}
}

func (s *stubSession) Descriptor() version.Descriptor { return s.desc }
func (s *stubSession) Version() string                { return s.version }
func (s *stubSession) Resolved() int                  { return version.MustResolve(s.version) }
func (s *stubSession) LoadTime() time.Duration        { return s.loadTime }
func (s *stubSession) Close() error                   { return nil }

func (s *stubSession) InvokeAction(ctx context.Context, name string, args session.Args) (any, error) {
	s.invoked = append(s.invoked, name)
	fn, ok := s.actions[name]
	if !ok {
		return nil, &session.ActionError{Action: name, Err: session.ErrUnknownAction}
	}
	out, err := fn(ctx, args)
	if err != nil {
		return nil, &session.ActionError{Action: name, Err: err}
	}
	return out, nil
}

func (s *stubSession) ReadState(_ context.Context, path string) (any, error) {
	v, ok := s.state[path]
	if !ok {
		return nil, &session.ActionError{Action: "read " + path, Err: fmt.Errorf("no state at %q", path)}
	}
	return v, nil
}

// value returns an extractor yielding v.
func value(v any) Extractor {
	return func(context.Context, session.Session, Params) (any, error) { return v, nil }
}
