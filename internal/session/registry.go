package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/giantswarm/version-matrix/internal/version"
)

// Adapter launches one in-process application release.
type Adapter interface {
	Launch(ctx context.Context, opts LaunchOptions) (Instance, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, opts LaunchOptions) (Instance, error)

// Launch calls f.
func (f AdapterFunc) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	return f(ctx, opts)
}

// Registry is a Launcher over Go adapters registered per install path or label.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to an install path or version label. A key naming
// an existing local path is stored as an absolute path, matching what Opener
// passes on.
func (r *Registry) Register(key string, a Adapter) {
	if _, err := os.Stat(key); err == nil {
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key] = a
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Launch looks up the adapter by install path first, then by label.
func (r *Registry) Launch(ctx context.Context, d version.Descriptor, opts LaunchOptions) (Instance, error) {
	r.mu.RLock()
	a, ok := r.adapters[d.InstallPath]
	if !ok {
		a, ok = r.adapters[d.Label]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no adapter registered for %q (%s)", d.Label, d.InstallPath)
	}
	return a.Launch(ctx, opts)
}

// App is a ready-made Instance for Go adapters.
type App struct {
	VersionString string
	Actions       map[string]ActionFunc
	State         StateFunc
	OnClose       func() error
}

func (a *App) Version() string { return a.VersionString }

func (a *App) Capabilities() Capabilities {
	return Capabilities{Actions: a.Actions, State: a.State}
}

func (a *App) Close() error {
	if a.OnClose != nil {
		return a.OnClose()
	}
	return nil
}
