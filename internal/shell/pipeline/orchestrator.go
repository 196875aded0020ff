// Package pipeline drives deployments from source location to running
// container.
//
// Each submitted deployment runs in its own goroutine through the stages
// cloning, detected, building, creating_container and running. Every status
// change is persisted before the next stage starts. A stage failure appends
// the diagnostic to the build log, marks the deployment failed and ends the
// run. Runs are never retried and never cancelled: a hung build blocks only
// its own deployment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/artpar/minideploy/internal/core/deployment"
	"github.com/artpar/minideploy/internal/core/detect"
	"github.com/artpar/minideploy/internal/core/domain"
	"github.com/artpar/minideploy/internal/core/traefik"
	"github.com/artpar/minideploy/internal/shell/docker"
	"github.com/artpar/minideploy/internal/shell/source"
	"github.com/artpar/minideploy/internal/shell/store"
	"golang.org/x/sync/semaphore"
)

// ErrShuttingDown is returned by Submit once Shutdown has been called.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// =============================================================================
// Collaborators
// =============================================================================

// Runtime builds images and places containers.
type Runtime interface {
	BuildImage(ctx context.Context, dir, tag string, labels map[string]string, onProgress func(line string)) (string, error)
	CreateAndStart(ctx context.Context, image, name string, port int, labels map[string]string) (string, error)
}

// Workspace hands out empty per-deployment directories.
type Workspace interface {
	Prepare(id string) (string, error)
}

// RecipeWriter writes the build recipe for an archetype into a directory.
type RecipeWriter interface {
	Write(dir string, archetype domain.Archetype) (string, error)
}

// RoutingConfig controls the proxy labels placed on containers.
type RoutingConfig struct {
	BaseDomain   string
	EntryPoint   string
	EnableTLS    bool
	CertResolver string
}

// Config configures an Orchestrator.
type Config struct {
	Routing RoutingConfig

	// MaxConcurrentBuilds bounds simultaneous image builds. Zero means
	// unbounded: every pipeline builds as soon as it reaches the build stage
	// and the daemon absorbs the contention.
	MaxConcurrentBuilds int64
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs deployment pipelines.
type Orchestrator struct {
	store     store.Store
	fetcher   source.Fetcher
	workspace Workspace
	recipes   RecipeWriter
	runtime   Runtime
	routing   RoutingConfig
	builds    *semaphore.Weighted
	metrics   *Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	closed   bool
	inFlight int
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	st store.Store,
	fetcher source.Fetcher,
	workspace Workspace,
	recipes RecipeWriter,
	runtime Runtime,
	cfg Config,
	metrics *Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:     st,
		fetcher:   fetcher,
		workspace: workspace,
		recipes:   recipes,
		runtime:   runtime,
		routing:   cfg.Routing,
		metrics:   metrics,
		logger:    logger.With("component", "orchestrator"),
	}
	if cfg.MaxConcurrentBuilds > 0 {
		o.builds = semaphore.NewWeighted(cfg.MaxConcurrentBuilds)
	}
	return o
}

// Submit starts the pipeline for a persisted, queued deployment and returns
// immediately.
func (o *Orchestrator) Submit(d domain.Deployment) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	o.inFlight++
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			o.inFlight--
			o.mu.Unlock()
			o.wg.Done()
		}()
		// Runs outlive the request that submitted them.
		_ = o.Run(context.Background(), &d)
	}()
	return nil
}

// InFlight returns the number of pipelines currently running.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Shutdown stops accepting submissions and waits for running pipelines until
// ctx is done. Pipelines still running when ctx expires keep running.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d pipelines: %w", o.InFlight(), ctx.Err())
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// Run executes the pipeline for d synchronously. It returns the stage error
// that failed the deployment, or nil once the deployment is running.
func (o *Orchestrator) Run(ctx context.Context, d *domain.Deployment) error {
	o.metrics.started()
	defer o.metrics.done()

	logger := o.logger.With("deployment_id", d.ID)
	logger.Info("pipeline started", "source", d.SourceLocation)

	err := o.run(ctx, d, logger)

	var persistErr *persistError
	switch {
	case err == nil:
		logger.Info("pipeline finished", "status", d.Status.String())
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("deployment removed while pipeline was running", "error", err)
	case errors.As(err, &persistErr):
		// The record cannot be written, so there is nowhere to report the failure.
		logger.Error("pipeline aborted", "stage", persistErr.stage, "error", persistErr.Err)
	default:
		o.fail(ctx, d, err, logger)
	}

	o.metrics.finished(err)
	return err
}

func (o *Orchestrator) run(ctx context.Context, d *domain.Deployment, logger *slog.Logger) error {
	// Acquire source
	if err := o.advance(ctx, d, domain.StatusCloning); err != nil {
		return err
	}
	var dir string
	err := o.stage("clone", logger, func() error {
		var err error
		dir, err = o.workspace.Prepare(d.ID)
		if err != nil {
			return err
		}
		return o.fetcher.Fetch(ctx, d.SourceLocation, dir)
	})
	if err != nil {
		return err
	}

	// Classify
	result := detect.Classify(os.DirFS(dir))
	logger.Info("stack detected", "archetype", result.Archetype, "port", result.Port, "manifest", result.Manifest)
	if err := o.advance(ctx, d, domain.StatusDetected(result.Archetype)); err != nil {
		return err
	}

	// Build, starting with the recipe so a failure to write it is a
	// build-stage failure.
	if err := o.advance(ctx, d, domain.StatusBuilding); err != nil {
		return err
	}
	err = o.stage("recipe", logger, func() error {
		_, err := o.recipes.Write(dir, result.Archetype)
		return err
	})
	if err != nil {
		return err
	}
	err = o.stage("build", logger, func() error {
		release, err := o.acquireBuildSlot(ctx)
		if err != nil {
			return err
		}
		defer release()
		_, err = o.runtime.BuildImage(ctx, dir, d.ImageTag, docker.OwnershipLabels(d.ID), func(line string) {
			d.BuildLog += line
			if err := o.store.AppendBuildLog(ctx, d.ID, line); err != nil {
				logger.Warn("failed to append build log", "error", err)
			}
		})
		return err
	})
	if err != nil {
		return err
	}

	// Create & start container
	if err := o.advance(ctx, d, domain.StatusCreatingContainer); err != nil {
		return err
	}
	var handle string
	err = o.stage("create_container", logger, func() error {
		var err error
		handle, err = o.runtime.CreateAndStart(ctx, d.ImageTag, deployment.ContainerName(d.ID), result.Port, o.labels(d.ID, result.Port))
		return err
	})
	if err != nil {
		return err
	}

	if err := d.MarkRunning(handle); err != nil {
		return &persistError{stage: "running", Err: err}
	}
	if err := o.store.MarkRunning(ctx, d.ID, handle); err != nil {
		return &persistError{stage: "running", Err: err}
	}
	return nil
}

// advance validates and persists a status change.
func (o *Orchestrator) advance(ctx context.Context, d *domain.Deployment, next domain.Status) error {
	if err := d.Transition(next); err != nil {
		return &persistError{stage: next.String(), Err: err}
	}
	if err := o.store.UpdateStatus(ctx, d.ID, next); err != nil {
		return &persistError{stage: next.String(), Err: err}
	}
	return nil
}

func (o *Orchestrator) stage(name string, logger *slog.Logger, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.observeStage(name, start, err)
	if err != nil {
		logger.Warn("stage failed", "stage", name, "duration", time.Since(start), "error", err)
		return err
	}
	logger.Debug("stage completed", "stage", name, "duration", time.Since(start))
	return nil
}

func (o *Orchestrator) acquireBuildSlot(ctx context.Context) (func(), error) {
	if o.builds == nil {
		return func() {}, nil
	}
	o.metrics.waitingForSlot(1)
	defer o.metrics.waitingForSlot(-1)
	if err := o.builds.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire build slot: %w", err)
	}
	return func() { o.builds.Release(1) }, nil
}

func (o *Orchestrator) labels(id string, port int) map[string]string {
	labels := traefik.GenerateLabels(traefik.LabelParams{
		DeploymentID: id,
		Hostname:     domain.PreviewHost(id, o.routing.BaseDomain),
		Port:         port,
		EntryPoint:   o.routing.EntryPoint,
		EnableTLS:    o.routing.EnableTLS,
		CertResolver: o.routing.CertResolver,
	})
	for k, v := range docker.OwnershipLabels(id) {
		labels[k] = v
	}
	return labels
}

// fail records a stage failure on the deployment.
func (o *Orchestrator) fail(ctx context.Context, d *domain.Deployment, cause error, logger *slog.Logger) {
	diagnostic := Diagnostic(cause)
	if err := d.Fail(diagnostic); err != nil {
		logger.Error("cannot mark deployment failed", "error", err)
		return
	}
	if err := o.store.FailDeployment(ctx, d.ID, diagnostic); err != nil {
		logger.Error("failed to persist failure", "error", err, "cause", cause)
		return
	}
	logger.Info("pipeline failed", "error", cause)
}

// Diagnostic returns the text recorded in the build log for a stage failure:
// the external tool's output when there is any, else the error text.
func Diagnostic(err error) string {
	var fetchErr *source.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Diagnostic()
	}
	return err.Error()
}

// persistError is a failure to record progress, as opposed to a stage failure.
type persistError struct {
	stage string
	Err   error
}

func (e *persistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.stage, e.Err)
}

func (e *persistError) Unwrap() error {
	return e.Err
}
