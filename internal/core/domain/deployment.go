package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	ErrSourceLocationRequired = errors.New("source location is required")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrTerminalStatus         = errors.New("deployment is in a terminal status")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrNoContainer            = errors.New("deployment has no container")
	ErrContainerAlreadySet    = errors.New("container handle already set")
)

// IDLength is the length of a deployment identifier.
const IDLength = 8

// FailureMarker separates accumulated build output from the failure diagnostic.
const FailureMarker = "\nERROR:\n"

// =============================================================================
// Deployment
// =============================================================================

// Deployment is the durable record of one deploy request.
type Deployment struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SourceLocation  string    `json:"source_location"`
	ImageTag        string    `json:"image_tag"`
	ContainerHandle string    `json:"container_handle,omitempty"`
	Status          Status    `json:"status"`
	BuildLog        string    `json:"build_log"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewDeployment creates a queued deployment for sourceLocation. imageTag
// derives the image tag from the generated id.
func NewDeployment(sourceLocation, name string, imageTag func(id string) string) (*Deployment, error) {
	sourceLocation = strings.TrimSpace(sourceLocation)
	if sourceLocation == "" {
		return nil, ErrSourceLocationRequired
	}

	id := NewID()
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}

	now := time.Now().UTC()
	return &Deployment{
		ID:             id,
		Name:           name,
		SourceLocation: sourceLocation,
		ImageTag:       imageTag(id),
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Transition moves the deployment to next if the lifecycle allows it.
func (d *Deployment) Transition(next Status) error {
	if d.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, d.Status)
	}
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRunning records the runtime handle and moves to running.
func (d *Deployment) MarkRunning(handle string) error {
	if d.ContainerHandle != "" {
		return ErrContainerAlreadySet
	}
	if err := d.Transition(StatusRunning); err != nil {
		return err
	}
	d.ContainerHandle = handle
	return nil
}

// Fail appends the diagnostic to the build log and moves to failed.
func (d *Deployment) Fail(diagnostic string) error {
	if err := d.Transition(StatusFailed); err != nil {
		return err
	}
	d.BuildLog += FailureMarker + diagnostic
	return nil
}

// MarkRestarted re-enters running after an in-place container restart.
func (d *Deployment) MarkRestarted() error {
	if d.ContainerHandle == "" {
		return ErrNoContainer
	}
	d.Status = StatusRunning
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// PreviewHost returns the routing hostname "<id>.<baseDomain>".
func (d *Deployment) PreviewHost(baseDomain string) string {
	return PreviewHost(d.ID, baseDomain)
}

// =============================================================================
// Identifiers
// =============================================================================

// NewID returns a short identifier safe for use as a DNS label, container
// name, image tag suffix and path component.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// PreviewHost returns the routing hostname for a deployment id.
func PreviewHost(id, baseDomain string) string {
	return fmt.Sprintf("%s.%s", id, baseDomain)
}
