// Package api binds the deployment operations to HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/minideploy/internal/core/domain"
	"github.com/artpar/minideploy/internal/core/validation"
	"github.com/artpar/minideploy/internal/shell/api/openapi"
	"github.com/artpar/minideploy/internal/shell/pipeline"
	"github.com/artpar/minideploy/internal/shell/service"
	"github.com/artpar/minideploy/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// =============================================================================
// Handler
// =============================================================================

// Service is the set of deployment operations served over HTTP.
type Service interface {
	Create(ctx context.Context, sourceLocation, name string) (*service.Created, error)
	List(ctx context.Context, opts store.ListOptions) ([]domain.Deployment, error)
	Get(ctx context.Context, id string) (*service.Status, error)
	Logs(ctx context.Context, id string) (*service.Logs, error)
	Delete(ctx context.Context, id string) (service.Cleanup, error)
	Restart(ctx context.Context, id string) (*domain.Deployment, error)
	PreviewURL(id string) string
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures a Handler.
type Config struct {
	// AllowedOrigin is a comma separated list of origins allowed to call
	// the API, "*" for any. Empty disables CORS.
	AllowedOrigin string
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	service Service
	runtime Pinger
	db      Pinger
	metrics *Metrics
	openapi *openapi.Generator
	cfg     Config
	logger  *slog.Logger
}

// NewHandler creates a new API handler. metrics may be nil.
func NewHandler(svc Service, runtime, db Pinger, metrics *Metrics, cfg Config, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	h := &Handler{
		service: svc,
		runtime: runtime,
		db:      db,
		metrics: metrics,
		openapi: openapi.NewGenerator(),
		cfg:     cfg,
		logger:  l.With("component", "api"),
	}
	h.openapi.Register(operations()...)
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if c := h.corsHandler(); c != nil {
		r.Use(c)
	}
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.metrics.instrument("/health", h.handleHealth))
	r.Get("/ready", h.metrics.instrument("/ready", h.handleReady))
	r.Handle("/metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.json", h.openapi.Handler())

	// Deployment routes
	r.Post("/deploy", h.metrics.instrument("/deploy", h.handleDeploy))
	r.Get("/deployments", h.metrics.instrument("/deployments", h.handleListDeployments))
	r.Get("/status/{id}", h.metrics.instrument("/status/{id}", h.handleStatus))
	r.Get("/logs/{id}", h.metrics.instrument("/logs/{id}", h.handleLogs))
	r.Delete("/delete/{id}", h.metrics.instrument("/delete/{id}", h.handleDelete))
	r.Post("/restart/{id}", h.metrics.instrument("/restart/{id}", h.handleRestart))

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// corsHandler lets the dashboard call the API from another origin. Nil when
// no origin is configured.
func (h *Handler) corsHandler() func(http.Handler) http.Handler {
	var origins []string
	for _, origin := range strings.Split(h.cfg.AllowedOrigin, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return nil
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"docker":   "ok",
	}
	ready := true

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warn("database not ready", "error", err)
		checks["database"] = "failed"
		ready = false
	}
	if err := h.runtime.Ping(r.Context()); err != nil {
		h.logger.Warn("docker not ready", "error", err)
		checks["docker"] = "failed"
		ready = false
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if field, msg := validation.ValidateDeployFields(req.RepoURL, req.Name); field != "" {
		h.writeError(w, http.StatusBadRequest, msg, "validation_error")
		return
	}

	created, err := h.service.Create(r.Context(), req.RepoURL, req.Name)
	if err != nil {
		h.writeServiceError(w, err, "failed to create deployment")
		return
	}

	h.writeJSON(w, http.StatusOK, DeployResponse{
		ID:           created.ID,
		DashboardURL: created.DashboardURL,
		PreviewURL:   created.PreviewURL,
	})
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	var opts store.ListOptions
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, p.name+" must be a non-negative integer", "validation_error")
			return
		}
		*p.dst = n
	}

	deployments, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err, "failed to list deployments")
		return
	}

	resp := make([]DeploymentResponse, 0, len(deployments))
	for i := range deployments {
		resp = append(resp, h.deploymentToResponse(&deployments[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get deployment")
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		Deployment:   h.deploymentToResponse(status.Deployment),
		DockerStatus: status.Container,
	})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	logs, err := h.service.Logs(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get logs")
		return
	}

	h.writeJSON(w, http.StatusOK, LogsResponse{Build: logs.Build, Runtime: logs.Runtime})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete deployment")
		return
	}

	h.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.service.Restart(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to restart deployment")
		return
	}

	h.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeServiceError maps a service error to a status code. Unexpected errors
// are logged and reported with fallback as the message.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
	case errors.Is(err, domain.ErrSourceLocationRequired):
		h.writeError(w, http.StatusBadRequest, "repoUrl is required", "validation_error")
	case errors.Is(err, domain.ErrNoContainer):
		h.writeError(w, http.StatusConflict, "deployment has no container yet", "no_container")
	case errors.Is(err, domain.ErrTerminalStatus):
		h.writeError(w, http.StatusConflict, "deployment has failed", "conflict")
	case errors.Is(err, pipeline.ErrShuttingDown):
		h.writeError(w, http.StatusServiceUnavailable, "server is shutting down", "unavailable")
	default:
		h.logger.Error(fallback, "error", err)
		h.writeError(w, http.StatusInternalServerError, fallback+": "+err.Error(), "internal_error")
	}
}

// operations describes the routes for the OpenAPI document.
func operations() []openapi.Operation {
	idParam := []string{"id"}
	return []openapi.Operation{
		{Method: http.MethodGet, Path: "/health", ID: "health", Summary: "Liveness check", Tag: "System",
			Response: HealthResponse{}},
		{Method: http.MethodGet, Path: "/ready", ID: "ready", Summary: "Readiness check", Tag: "System",
			Response: ReadyResponse{}, Errors: []int{http.StatusServiceUnavailable}},
		{Method: http.MethodPost, Path: "/deploy", ID: "createDeployment", Summary: "Deploy a repository", Tag: "Deployments",
			Request: DeployRequest{}, Response: DeployResponse{},
			Errors: []int{http.StatusBadRequest, http.StatusServiceUnavailable, http.StatusInternalServerError}},
		{Method: http.MethodGet, Path: "/deployments", ID: "listDeployments", Summary: "List deployments, newest first", Tag: "Deployments",
			Response: []DeploymentResponse{}, QueryParams: []string{"limit", "offset"},
			Errors: []int{http.StatusBadRequest, http.StatusInternalServerError}},
		{Method: http.MethodGet, Path: "/status/{id}", ID: "getDeploymentStatus", Summary: "Get a deployment with live container state", Tag: "Deployments",
			Response: StatusResponse{}, PathParams: idParam, Errors: []int{http.StatusNotFound}},
		{Method: http.MethodGet, Path: "/logs/{id}", ID: "getDeploymentLogs", Summary: "Get build and runtime logs", Tag: "Deployments",
			Response: LogsResponse{}, PathParams: idParam, Errors: []int{http.StatusNotFound}},
		{Method: http.MethodDelete, Path: "/delete/{id}", ID: "deleteDeployment", Summary: "Delete a deployment and reclaim its resources (best-effort)", Tag: "Deployments",
			Response: OKResponse{}, PathParams: idParam, Errors: []int{http.StatusNotFound, http.StatusInternalServerError}},
		{Method: http.MethodPost, Path: "/restart/{id}", ID: "restartDeployment", Summary: "Restart a deployment's container", Tag: "Deployments",
			Response: OKResponse{}, PathParams: idParam, Errors: []int{http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError}},
	}
}
