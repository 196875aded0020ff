// Package service implements the deployment operations exposed to clients:
// create, list, status, logs, delete and restart.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/minideploy/internal/core/deployment"
	"github.com/artpar/minideploy/internal/core/domain"
	"github.com/artpar/minideploy/internal/shell/docker"
	"github.com/artpar/minideploy/internal/shell/store"
)

var (
	ErrSourceLocationRequired = domain.ErrSourceLocationRequired
	ErrNoContainer            = domain.ErrNoContainer
)

// createAttempts bounds retries on identifier collisions.
const createAttempts = 3

// =============================================================================
// Collaborators
// =============================================================================

// Runtime is the container daemon as seen by request handlers.
type Runtime interface {
	Inspect(ctx context.Context, handle string) *docker.ContainerInfo
	FetchLogs(ctx context.Context, handle string, tail int) string
	StopAndRemove(ctx context.Context, handle string) bool
	ContainerExists(ctx context.Context, handle string) (bool, error)
	RemoveImage(ctx context.Context, tag string) bool
	Restart(ctx context.Context, handle string) error
}

// Submitter starts the pipeline for a queued deployment.
type Submitter interface {
	Submit(d domain.Deployment) error
}

// Workspace removes per-deployment checkout directories.
type Workspace interface {
	Remove(id string) error
}

// Config configures a Service.
type Config struct {
	BaseDomain    string
	DashboardURL  string
	PreviewScheme string
	LogTail       int
}

// =============================================================================
// Results
// =============================================================================

// Created is returned by Create.
type Created struct {
	ID           string
	DashboardURL string
	PreviewURL   string
}

// Status is a deployment record plus live container state. Container is nil
// when there is no container or it no longer exists.
type Status struct {
	Deployment *domain.Deployment
	Container  *docker.ContainerInfo
}

// Logs holds persisted build output and live runtime output.
type Logs struct {
	Build   string
	Runtime string
}

// Cleanup reports which resources are gone after a delete. A resource that
// never existed counts as reclaimed.
type Cleanup struct {
	ContainerRemoved bool
	ImageRemoved     bool
	SourceRemoved    bool
}

// Complete reports whether every resource was reclaimed.
func (c Cleanup) Complete() bool {
	return c.ContainerRemoved && c.ImageRemoved && c.SourceRemoved
}

// =============================================================================
// Service
// =============================================================================

// Service implements the deployment operations.
type Service struct {
	store     store.Store
	runtime   Runtime
	workspace Workspace
	submitter Submitter
	cfg       Config
	logger    *slog.Logger
}

// New creates a service.
func New(st store.Store, runtime Runtime, workspace Workspace, submitter Submitter, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PreviewScheme == "" {
		cfg.PreviewScheme = "http"
	}
	return &Service{
		store:     st,
		runtime:   runtime,
		workspace: workspace,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger.With("component", "service"),
	}
}

// Create records a queued deployment, hands it to the pipeline and returns
// without waiting for the pipeline.
func (s *Service) Create(ctx context.Context, sourceLocation, name string) (*Created, error) {
	var d *domain.Deployment
	for attempt := 1; ; attempt++ {
		var err error
		d, err = domain.NewDeployment(sourceLocation, name, deployment.ImageTag)
		if err != nil {
			return nil, err
		}
		err = s.store.CreateDeployment(ctx, d)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateID) || attempt == createAttempts {
			return nil, err
		}
		s.logger.Warn("deployment id collision, retrying", "id", d.ID, "attempt", attempt)
	}

	if err := s.submitter.Submit(*d); err != nil {
		if failErr := s.store.FailDeployment(ctx, d.ID, err.Error()); failErr != nil {
			s.logger.Error("failed to record rejected submission", "deployment_id", d.ID, "error", failErr)
		}
		return nil, fmt.Errorf("submit deployment %s: %w", d.ID, err)
	}

	s.logger.Info("deployment created", "deployment_id", d.ID, "source", d.SourceLocation)
	return &Created{
		ID:           d.ID,
		DashboardURL: s.cfg.DashboardURL,
		PreviewURL:   s.PreviewURL(d.ID),
	}, nil
}

// PreviewURL returns the routed URL of a deployment.
func (s *Service) PreviewURL(id string) string {
	return fmt.Sprintf("%s://%s", s.cfg.PreviewScheme, domain.PreviewHost(id, s.cfg.BaseDomain))
}

// List returns deployments, newest first. A zero Limit lists all of them.
func (s *Service) List(ctx context.Context, opts store.ListOptions) ([]domain.Deployment, error) {
	return s.store.ListDeployments(ctx, opts)
}

// Get returns a deployment with its live container state.
func (s *Service) Get(ctx context.Context, id string) (*Status, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	status := &Status{Deployment: d}
	if d.ContainerHandle != "" {
		status.Container = s.runtime.Inspect(ctx, d.ContainerHandle)
	}
	return status, nil
}

// Logs returns the build log and the tail of the container's output.
func (s *Service) Logs(ctx context.Context, id string) (*Logs, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	logs := &Logs{Build: d.BuildLog}
	if d.ContainerHandle != "" {
		logs.Runtime = s.runtime.FetchLogs(ctx, d.ContainerHandle, s.cfg.LogTail)
	}
	return logs, nil
}

// Delete reclaims the container, image and checkout of a deployment and
// removes its record. Reclaiming resources is best-effort: failures are
// logged and reported in the returned Cleanup but do not fail the delete.
// Deleting a deployment whose pipeline is still running can leave resources
// the pipeline creates afterwards.
func (s *Service) Delete(ctx context.Context, id string) (Cleanup, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return Cleanup{}, err
	}
	logger := s.logger.With("deployment_id", id)

	if !d.Status.Terminal() && d.Status != domain.StatusRunning {
		logger.Warn("deleting deployment with pipeline in progress", "status", d.Status.String())
	}

	// The container name is deterministic, so it is reclaimed even when the
	// handle was never recorded.
	handle := d.ContainerHandle
	if handle == "" {
		handle = deployment.ContainerName(id)
	}

	var cleanup Cleanup
	cleanup.ContainerRemoved = s.reclaimContainer(ctx, handle, logger)
	cleanup.ImageRemoved = s.runtime.RemoveImage(ctx, d.ImageTag)
	if err := s.workspace.Remove(id); err != nil {
		logger.Warn("failed to remove source checkout", "error", err)
	} else {
		cleanup.SourceRemoved = true
	}

	if err := s.store.DeleteDeployment(ctx, id); err != nil {
		return cleanup, err
	}

	if !cleanup.Complete() {
		logger.Warn("deployment deleted with incomplete cleanup",
			"container_removed", cleanup.ContainerRemoved,
			"image_removed", cleanup.ImageRemoved,
			"source_removed", cleanup.SourceRemoved,
		)
	} else {
		logger.Info("deployment deleted")
	}
	return cleanup, nil
}

// reclaimContainer removes the container behind handle and reports whether
// none remains, including when there was nothing to remove.
func (s *Service) reclaimContainer(ctx context.Context, handle string, logger *slog.Logger) bool {
	if s.runtime.StopAndRemove(ctx, handle) {
		return true
	}
	exists, err := s.runtime.ContainerExists(ctx, handle)
	if err != nil {
		logger.Warn("could not confirm container removal", "container", handle, "error", err)
		return false
	}
	return !exists
}

// Restart restarts the deployment's container in place without re-running
// the pipeline. The status update is applied to the record as it stands
// after the restart, so a record deleted or failed meanwhile is left alone.
func (s *Service) Restart(ctx context.Context, id string) (*domain.Deployment, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.ContainerHandle) == "" {
		return nil, fmt.Errorf("restart %s: %w", id, ErrNoContainer)
	}

	if err := s.runtime.Restart(ctx, d.ContainerHandle); err != nil {
		return nil, fmt.Errorf("restart %s: %w", id, err)
	}

	var restarted *domain.Deployment
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		current, err := tx.GetDeployment(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return fmt.Errorf("restart %s: %w", id, domain.ErrTerminalStatus)
		}
		if err := current.MarkRestarted(); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, current.Status); err != nil {
			return err
		}
		restarted = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deployment restarted", "deployment_id", id)
	return restarted, nil
}
