package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/minideploy/internal/core/recipe"
	"github.com/artpar/minideploy/internal/shell/api"
	"github.com/artpar/minideploy/internal/shell/docker"
	"github.com/artpar/minideploy/internal/shell/pipeline"
	"github.com/artpar/minideploy/internal/shell/service"
	"github.com/artpar/minideploy/internal/shell/source"
	"github.com/artpar/minideploy/internal/shell/store"
	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitWorkspaceError  = 5
)

// =============================================================================
// Server
// =============================================================================

// Server represents the minideploy application server.
type Server struct {
	config       *Config
	httpServer   *http.Server
	store        store.Store
	docker       docker.Client
	gateway      *docker.Gateway
	orchestrator *pipeline.Orchestrator
	logger       *slog.Logger
}

// NewServer connects to the database and the Docker daemon and wires the
// deployment pipeline behind the HTTP API.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	ctx := context.Background()
	if err := d.Ping(ctx); err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	workspace, err := source.NewWorkspace(cfg.Workspace.Root)
	if err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitWorkspaceError,
		}
	}

	gateway := docker.NewGateway(d, docker.GatewayConfig{
		Network:     cfg.Docker.Network,
		StopTimeout: cfg.Pipeline.StopTimeout,
	}, logger)

	// Containers are created on the routing network; a missing network only
	// surfaces later as a placement failure, so warn up front.
	if ok, err := gateway.NetworkReady(ctx); err != nil {
		logger.Warn("could not check routing network", "network", gateway.Network(), "error", err)
	} else if !ok {
		logger.Warn("routing network does not exist, deployments will fail to start until it is created",
			"network", gateway.Network())
	}

	orchestrator := pipeline.NewOrchestrator(
		s,
		source.NewGitFetcher(),
		workspace,
		recipe.NewGenerator(recipe.Images{
			NodeImage:      cfg.Recipe.NodeImage,
			WebServerImage: cfg.Recipe.WebServerImage,
			PythonImage:    cfg.Recipe.PythonImage,
		}),
		gateway,
		pipeline.Config{
			Routing: pipeline.RoutingConfig{
				BaseDomain:   cfg.Domain.BaseDomain,
				EntryPoint:   cfg.Domain.EntryPoint,
				EnableTLS:    cfg.Domain.EnableTLS,
				CertResolver: cfg.Domain.CertResolver,
			},
			MaxConcurrentBuilds: cfg.Pipeline.MaxConcurrentBuilds,
		},
		pipeline.NewMetrics(prometheus.DefaultRegisterer),
		logger,
	)

	svc := service.New(s, gateway, workspace, orchestrator, service.Config{
		BaseDomain:    cfg.Domain.BaseDomain,
		DashboardURL:  cfg.Domain.DashboardURL,
		PreviewScheme: cfg.Domain.PreviewScheme,
		LogTail:       cfg.Pipeline.LogTail,
	}, logger)

	handler := api.NewHandler(svc, gateway, s, api.NewMetrics(prometheus.DefaultRegisterer), api.Config{
		AllowedOrigin: cfg.CORS.AllowedOrigin,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server configured",
		"base_domain", cfg.Domain.BaseDomain,
		"network", gateway.Network(),
		"workspace", workspace.Root(),
		"max_concurrent_builds", cfg.Pipeline.MaxConcurrentBuilds,
	)

	return &Server{
		config:       cfg,
		httpServer:   httpServer,
		store:        s,
		docker:       d,
		gateway:      gateway,
		orchestrator: orchestrator,
		logger:       logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown stops accepting requests, waits for running pipelines up to the
// shutdown timeout and releases the database and Docker client. Pipelines
// still running at the deadline are abandoned mid-stage.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.orchestrator.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("pipelines still running at shutdown", "error", err)
	}

	if err := s.docker.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
