// Package docker is the boundary to the container daemon.
//
// Client is a thin, context-aware wrapper over the Docker Engine SDK. Gateway
// composes Client calls into the operations the deployment pipeline needs and
// applies their failure policy: build and placement errors propagate, while
// stop, remove and log retrieval are best-effort.
package docker

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// =============================================================================
// Build Types
// =============================================================================

// BuildSpec describes an image build from a directory on the local disk.
type BuildSpec struct {
	ContextDir string
	Tag        string
	Dockerfile string // relative to ContextDir, "Dockerfile" when empty
	Labels     map[string]string
}

// BuildEvent is one progress message from the daemon's build stream.
type BuildEvent struct {
	Stream   string
	Status   string
	ID       string
	Progress string
	Error    string
	Raw      json.RawMessage
}

// Line renders the event as a single JSON line terminated by a newline.
func (e BuildEvent) Line() string {
	raw := strings.TrimSpace(string(e.Raw))
	if raw == "" {
		b, _ := json.Marshal(map[string]string{"stream": e.Stream})
		raw = string(b)
	}
	return raw + "\n"
}

// BuildEventHandler receives build events in order, on the calling goroutine.
type BuildEventHandler func(BuildEvent)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name         string
	Image        string
	Env          map[string]string
	Labels       map[string]string
	ExposedPorts []int // exposed only, never bound to the host
}

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerState is the live runtime state of a container.
type ContainerState struct {
	Status       ContainerStatus `json:"status"`
	Running      bool            `json:"running"`
	Health       string          `json:"health,omitempty"` // "healthy", "unhealthy", "starting", ""
	ExitCode     int             `json:"exit_code"`
	RestartCount int             `json:"restart_count"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// ContainerConfig is the configuration a container was created with.
type ContainerConfig struct {
	Image        string            `json:"image"`
	Labels       map[string]string `json:"labels"`
	ExposedPorts []string          `json:"exposed_ports,omitempty"`
	Networks     []string          `json:"networks,omitempty"`
}

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	State     ContainerState  `json:"state"`
	Config    ContainerConfig `json:"config"`
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Tail       string // "all" or number
	Timestamps bool
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker client interface.
type Client interface {
	// Image operations
	BuildImage(ctx context.Context, spec BuildSpec, onEvent BuildEventHandler) error
	RemoveImage(ctx context.Context, image string, force bool) error

	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RestartContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)

	// Network operations
	ConnectNetwork(ctx context.Context, networkID, containerID string) error
	NetworkExists(ctx context.Context, networkID string) (bool, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged    = "com.minideploy.managed"
	LabelDeployment = "com.minideploy.deployment"
)

// OwnershipLabels returns the labels marking a resource as belonging to a
// deployment.
func OwnershipLabels(deploymentID string) map[string]string {
	return map[string]string{
		LabelManaged:    "true",
		LabelDeployment: deploymentID,
	}
}
