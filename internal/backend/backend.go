// Package backend selects how application releases are launched for a
// matrix run.
package backend

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/giantswarm/version-matrix/internal/cluster"
	"github.com/giantswarm/version-matrix/internal/demo"
	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/session/interp"
	"github.com/giantswarm/version-matrix/internal/version"
)

const (
	// Registry launches in-process Go adapters, including the bundled demo releases.
	Registry = "registry"
	// Interp interprets Go-source releases with yaegi.
	Interp = "interp"
	// Cluster runs every release as a Kubernetes Pod.
	Cluster = "cluster"
)

// Names lists the supported backends.
func Names() []string {
	return []string{Registry, Interp, Cluster}
}

// Options configures backend construction.
type Options struct {
	// Registry replaces the default registry holding the demo releases.
	Registry *session.Registry

	// Package is the interp entry package.
	Package string

	// Cluster must be set for the cluster backend.
	Cluster *cluster.Manager
	// Endpoint overrides how the cluster backend reaches a ready Pod.
	Endpoint func(*cluster.ReleaseStatus) string
}

// UnsupportedBackendError is returned when an unknown backend is requested.
type UnsupportedBackendError struct {
	Name string
}

func (e *UnsupportedBackendError) Error() string {
	return "unsupported backend: " + e.Name
}

// ErrClusterUnavailable is returned for the cluster backend without a manager.
var ErrClusterUnavailable = errors.New("cluster backend requires Kubernetes access")

// Get returns the launcher for the named backend. An empty name selects the
// registry.
func Get(name string, opts Options) (session.Launcher, error) {
	switch name {
	case Registry, "":
		r := opts.Registry
		if r == nil {
			r = session.NewRegistry()
			demo.Register(r)
		}
		return r, nil
	case Interp:
		return interp.NewLauncher(opts.Package), nil
	case Cluster:
		if opts.Cluster == nil {
			return nil, ErrClusterUnavailable
		}
		l := cluster.NewLauncher(opts.Cluster)
		l.Endpoint = opts.Endpoint
		return l, nil
	default:
		return nil, &UnsupportedBackendError{Name: name}
	}
}

// ResolvePaths makes install paths that exist on disk absolute, since a
// session changes into the install directory before launching. Paths that
// are not local (registry keys, images) are kept as given.
func ResolvePaths(ds []version.Descriptor) []version.Descriptor {
	out := make([]version.Descriptor, len(ds))
	copy(out, ds)
	for i, d := range out {
		if _, err := os.Stat(d.InstallPath); err != nil {
			continue
		}
		if abs, err := filepath.Abs(d.InstallPath); err == nil {
			out[i].InstallPath = abs
		}
	}
	return out
}
