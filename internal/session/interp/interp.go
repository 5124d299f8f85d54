// Package interp runs Go-source application releases inside a yaegi
// interpreter. Every session gets a fresh interpreter whose GOPATH is the
// install directory, so code loaded for one version never shadows another.
package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/version"
)

// DefaultPackage is the entry package looked up below <install>/src.
const DefaultPackage = "app"

// Entry points the entry package must export.
type (
	launchFunc  = func(bool) error
	invokeFunc  = func(string, map[string]interface{}) (interface{}, error)
	readFunc    = func(string) (interface{}, error)
	actionsFunc = func() []string
	closeFunc   = func()
)

// Launcher starts releases laid out as a GOPATH: <install>/src/<package>.
type Launcher struct {
	// Package is the import path of the entry package. Defaults to "app".
	Package string
}

// NewLauncher creates a Launcher for the given entry package.
func NewLauncher(pkg string) *Launcher {
	return &Launcher{Package: pkg}
}

func (l *Launcher) pkg() string {
	if l.Package == "" {
		return DefaultPackage
	}
	return l.Package
}

// Launch implements session.Launcher.
func (l *Launcher) Launch(_ context.Context, d version.Descriptor, opts session.LaunchOptions) (session.Instance, error) {
	gopath, err := filepath.Abs(d.InstallPath)
	if err != nil {
		return nil, err
	}
	src := filepath.Join(gopath, "src", filepath.FromSlash(l.pkg()))
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("entry package %q not found in %s", l.pkg(), gopath)
	}

	i := interp.New(interp.Options{GoPath: gopath})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if _, err := i.Eval(fmt.Sprintf("import %q", l.pkg())); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", l.pkg(), err)
	}

	app := &instance{name: filepath.Base(l.pkg())}
	if err := app.bind(i); err != nil {
		return nil, err
	}

	slog.Debug("interpreted release loaded", "version", d.Label, "gopath", gopath, "package", l.pkg())

	if err := app.launch(opts.NoPrompts); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

type instance struct {
	name    string
	version string
	launch  launchFunc
	invoke  invokeFunc
	read    readFunc
	actions []string
	close   closeFunc
}

func (a *instance) bind(i *interp.Interpreter) error {
	v, err := i.Eval(a.name + ".Version")
	if err != nil {
		return fmt.Errorf("%s does not export Version: %w", a.name, err)
	}
	switch x := v.Interface().(type) {
	case string:
		a.version = x
	case func() string:
		a.version = x()
	default:
		return fmt.Errorf("%s.Version has type %T, want string", a.name, x)
	}

	if err := lookup(i, a.name+".Launch", &a.launch); err != nil {
		return err
	}
	if err := lookup(i, a.name+".Invoke", &a.invoke); err != nil {
		return err
	}
	if err := lookup(i, a.name+".Read", &a.read); err != nil {
		return err
	}
	if err := lookup(i, a.name+".Close", &a.close); err != nil {
		return err
	}

	var actions actionsFunc
	if err := lookup(i, a.name+".Actions", &actions); err != nil {
		return err
	}
	a.actions = actions()
	sort.Strings(a.actions)
	return nil
}

// lookup evaluates an exported function and stores it in dst, which must
// point to a variable of the expected function type.
func lookup[F any](i *interp.Interpreter, name string, dst *F) error {
	v, err := i.Eval(name)
	if err != nil {
		return fmt.Errorf("%s is not exported: %w", name, err)
	}
	fn, ok := v.Interface().(F)
	if !ok {
		return fmt.Errorf("%s has incorrect signature (expected %T)", name, *dst)
	}
	*dst = fn
	return nil
}

func (a *instance) Version() string { return a.version }

func (a *instance) Capabilities() session.Capabilities {
	actions := make(map[string]session.ActionFunc, len(a.actions))
	for _, name := range a.actions {
		actions[name] = func(_ context.Context, args session.Args) (any, error) {
			return a.invoke(name, map[string]interface{}(args))
		}
	}
	return session.Capabilities{
		Actions: actions,
		State: func(_ context.Context, path string) (any, error) {
			return a.read(path)
		},
	}
}

func (a *instance) Close() error {
	if a.close == nil {
		return errors.New("release already closed")
	}
	a.close()
	a.close = nil
	return nil
}

var _ session.Launcher = (*Launcher)(nil)
