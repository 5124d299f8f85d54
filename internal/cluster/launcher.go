package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/version"
)

// Launcher runs every session in a fresh Pod whose image is the descriptor's
// install path.
type Launcher struct {
	Manager      *Manager
	Port         int
	ReadyTimeout time.Duration
	Env          map[string]string
	HTTPClient   *http.Client

	// Endpoint overrides how a ready release is reached, e.g. through a
	// port-forward when running outside the cluster.
	Endpoint func(status *ReleaseStatus) string
}

// NewLauncher creates a Launcher with default settings.
func NewLauncher(m *Manager) *Launcher {
	return &Launcher{Manager: m, Port: DefaultPort, ReadyTimeout: 5 * time.Minute}
}

// Launch implements session.Launcher.
func (l *Launcher) Launch(ctx context.Context, d version.Descriptor, opts session.LaunchOptions) (session.Instance, error) {
	cfg := DefaultReleaseConfig(d.Label, d.InstallPath)
	cfg.NoPrompts = opts.NoPrompts
	cfg.Env = l.Env
	if l.Port > 0 {
		cfg.Port = l.Port
	}
	if l.ReadyTimeout > 0 {
		cfg.ReadyTimeout = l.ReadyTimeout
	}

	status, err := l.Manager.Deploy(ctx, cfg)
	if err != nil {
		return nil, err
	}

	teardown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return l.Manager.Teardown(ctx, status.Name)
	}

	endpoint := status.EndpointURL
	if l.Endpoint != nil {
		endpoint = l.Endpoint(status)
	}

	remote, err := Dial(ctx, endpoint, l.HTTPClient, teardown)
	if err != nil {
		if terr := teardown(); terr != nil {
			slog.Error("failed to tear down release", "name", status.Name, "error", terr)
		}
		return nil, fmt.Errorf("release %s at %s: %w", d.Label, endpoint, err)
	}
	return remote, nil
}

var _ session.Launcher = (*Launcher)(nil)
