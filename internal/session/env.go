package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SearchPathVar is the module search path variable sessions prepend their
// install path to. Adapters that load code by search path read it.
const SearchPathVar = "VERSION_MATRIX_PATH"

type envValue struct {
	value string
	set   bool
}

// Environment owns the process-wide state that successive sessions share:
// the working directory and a set of search path variables. Sessions acquire
// it with Enter and release it with Reset.
type Environment struct {
	mu       sync.Mutex
	baseDir  string
	baseVars map[string]envValue
	vars     []string
	held     bool
}

// CaptureEnvironment records the current working directory and the values of
// the given search variables as the baseline. SearchPathVar is always tracked.
func CaptureEnvironment(vars ...string) (*Environment, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to read working directory: %w", err)
	}

	tracked := []string{SearchPathVar}
	for _, v := range vars {
		if v != SearchPathVar {
			tracked = append(tracked, v)
		}
	}

	base := make(map[string]envValue, len(tracked))
	for _, name := range tracked {
		value, ok := os.LookupEnv(name)
		base[name] = envValue{value: value, set: ok}
	}

	return &Environment{
		baseDir:  dir,
		baseVars: base,
		vars:     tracked,
	}, nil
}

// BaseDir returns the baseline working directory.
func (e *Environment) BaseDir() string {
	return e.baseDir
}

// Resolve makes a relative path that names an existing entry below the
// baseline directory absolute. Other paths, such as registry keys or image
// references, are returned unchanged.
func (e *Environment) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs := filepath.Join(e.baseDir, path)
	if _, err := os.Stat(abs); err != nil {
		return path
	}
	return abs
}

// Reset restores the baseline and releases ownership. The restore is verified;
// a mismatch is reported as an EnvironmentResetError.
func (e *Environment) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Chdir(e.baseDir); err != nil {
		return &EnvironmentResetError{Err: fmt.Errorf("chdir %s: %w", e.baseDir, err)}
	}
	for _, name := range e.vars {
		base := e.baseVars[name]
		var err error
		if base.set {
			err = os.Setenv(name, base.value)
		} else {
			err = os.Unsetenv(name)
		}
		if err != nil {
			return &EnvironmentResetError{Err: fmt.Errorf("restore %s: %w", name, err)}
		}
	}

	if err := e.verify(); err != nil {
		return &EnvironmentResetError{Err: err}
	}

	e.held = false
	return nil
}

func (e *Environment) verify() error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("read working directory: %w", err)
	}
	if !samePath(dir, e.baseDir) {
		return fmt.Errorf("working directory is %s, expected %s", dir, e.baseDir)
	}
	for _, name := range e.vars {
		value, ok := os.LookupEnv(name)
		base := e.baseVars[name]
		if ok != base.set || value != base.value {
			return fmt.Errorf("%s was not restored", name)
		}
	}
	return nil
}

// Enter takes ownership of the environment for one session: it changes into
// dir (when dir is an existing directory) and prepends searchPath to every
// tracked search variable.
func (e *Environment) Enter(dir string, searchPath ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held {
		return ErrEnvironmentBusy
	}

	if dir != "" {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			if err := os.Chdir(dir); err != nil {
				return fmt.Errorf("chdir %s: %w", dir, err)
			}
		default:
			slog.Debug("install path is not a local directory, keeping working directory", "path", dir)
		}
	}

	if len(searchPath) > 0 {
		prefix := strings.Join(searchPath, string(os.PathListSeparator))
		for _, name := range e.vars {
			value := prefix
			if base := e.baseVars[name]; base.set && base.value != "" {
				value += string(os.PathListSeparator) + base.value
			}
			if err := os.Setenv(name, value); err != nil {
				return fmt.Errorf("set %s: %w", name, err)
			}
		}
	}

	e.held = true
	return nil
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}
