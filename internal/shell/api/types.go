package api

import (
	"time"

	"github.com/artpar/minideploy/internal/core/domain"
	"github.com/artpar/minideploy/internal/shell/docker"
)

// =============================================================================
// Request Types
// =============================================================================

// DeployRequest is the request body for creating a deployment.
type DeployRequest struct {
	RepoURL string `json:"repoUrl"`
	Name    string `json:"name,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// DeployResponse is returned as soon as a deployment is queued.
type DeployResponse struct {
	ID           string `json:"id"`
	DashboardURL string `json:"dashboardUrl"`
	PreviewURL   string `json:"previewUrl"`
}

// DeploymentResponse is the dashboard view of a deployment record.
type DeploymentResponse struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	RepoURL     string       `json:"repoUrl"`
	ImageName   string       `json:"imageName"`
	ContainerID string       `json:"containerId,omitempty"`
	Status      string       `json:"status"`
	Logs        LogsResponse `json:"logs"`
	PreviewURL  string       `json:"previewUrl"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// StatusResponse is a deployment plus live container state. DockerStatus is
// omitted when the deployment has no container or it no longer exists.
type StatusResponse struct {
	Deployment   DeploymentResponse    `json:"deployment"`
	DockerStatus *docker.ContainerInfo `json:"dockerStatus,omitempty"`
}

// LogsResponse holds build and runtime output.
type LogsResponse struct {
	Build   string `json:"build"`
	Runtime string `json:"runtime"`
}

// OKResponse acknowledges delete and restart.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) deploymentToResponse(d *domain.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:          d.ID,
		Name:        d.Name,
		RepoURL:     d.SourceLocation,
		ImageName:   d.ImageTag,
		ContainerID: d.ContainerHandle,
		Status:      d.Status.String(),
		Logs:        LogsResponse{Build: d.BuildLog},
		PreviewURL:  h.service.PreviewURL(d.ID),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
