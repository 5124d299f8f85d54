package cluster

import "time"

// ReleaseConfig defines one application release served as a Pod.
type ReleaseConfig struct {
	// Label is the version label; it names the Pod.
	Label string

	// Image is the container image of the release.
	Image string

	// Port is the container port of the capability protocol (default 8080).
	Port int

	// NoPrompts is passed to the application entry point.
	NoPrompts bool

	// Env holds extra environment variables for the container.
	Env map[string]string

	// ReadyTimeout is how long to wait for the Pod to become ready.
	ReadyTimeout time.Duration
}

// ReleaseStatus represents the observed state of a deployed release.
type ReleaseStatus struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Ready       bool   `json:"ready"`
	EndpointURL string `json:"endpoint_url,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	Message     string `json:"message,omitempty"`
}

// DefaultPort is the container port of the capability protocol.
const DefaultPort = 8080

// DefaultReleaseConfig returns sensible defaults for a release config.
func DefaultReleaseConfig(label, image string) ReleaseConfig {
	return ReleaseConfig{
		Label:        label,
		Image:        image,
		Port:         DefaultPort,
		NoPrompts:    true,
		ReadyTimeout: 5 * time.Minute,
	}
}
