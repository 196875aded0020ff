package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultNetwork is the shared routing network watched by the reverse proxy.
const DefaultNetwork = "proxy"

// DefaultStopTimeout bounds how long a container gets to exit before it is
// killed.
const DefaultStopTimeout = 10 * time.Second

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Network     string
	StopTimeout time.Duration
}

// Gateway is the deployment pipeline's view of the container daemon.
type Gateway struct {
	client      Client
	network     string
	stopTimeout time.Duration
	logger      *slog.Logger
}

// NewGateway creates a gateway over client.
func NewGateway(client Client, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Gateway{
		client:      client,
		network:     cfg.Network,
		stopTimeout: cfg.StopTimeout,
		logger:      logger.With("component", "gateway"),
	}
}

// Network returns the routing network containers are attached to.
func (g *Gateway) Network() string {
	return g.network
}

// =============================================================================
// Must-succeed Operations
// =============================================================================

// BuildImage builds dir into an image tagged tag. onProgress receives each
// daemon progress event as one JSON line, synchronously and in order. The
// returned text is the concatenated build output.
func (g *Gateway) BuildImage(ctx context.Context, dir, tag string, labels map[string]string, onProgress func(line string)) (string, error) {
	var output strings.Builder
	err := g.client.BuildImage(ctx, BuildSpec{
		ContextDir: dir,
		Tag:        tag,
		Labels:     labels,
	}, func(ev BuildEvent) {
		output.WriteString(ev.Stream)
		if onProgress != nil {
			onProgress(ev.Line())
		}
	})
	if err != nil {
		return output.String(), err
	}
	return output.String(), nil
}

// CreateAndStart creates a container from image, attaches it to the routing
// network and starts it. No host port is bound. A container that cannot be
// attached or started is removed before the error is returned.
func (g *Gateway) CreateAndStart(ctx context.Context, image, name string, port int, labels map[string]string) (string, error) {
	containerID, err := g.client.CreateContainer(ctx, ContainerSpec{
		Name:         name,
		Image:        image,
		Labels:       labels,
		ExposedPorts: []int{port},
		Env:          map[string]string{"PORT": strconv.Itoa(port)},
	})
	if err != nil {
		return "", err
	}

	if err := g.client.ConnectNetwork(ctx, g.network, containerID); err != nil {
		g.discard(ctx, containerID)
		return "", fmt.Errorf("attach to network %s: %w", g.network, err)
	}

	if err := g.client.StartContainer(ctx, containerID); err != nil {
		g.discard(ctx, containerID)
		return "", err
	}

	g.logger.Info("container started", "container", containerID, "name", name, "network", g.network)
	return containerID, nil
}

func (g *Gateway) discard(ctx context.Context, containerID string) {
	if err := g.client.RemoveContainer(ctx, containerID, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
		g.logger.Warn("failed to remove unplaced container", "container", containerID, "error", err)
	}
}

// Restart restarts the container in place.
func (g *Gateway) Restart(ctx context.Context, handle string) error {
	timeout := g.stopTimeout
	return g.client.RestartContainer(ctx, handle, &timeout)
}

// =============================================================================
// Best-effort Operations
// =============================================================================

// Inspect returns the live state of a container, or nil when it cannot be
// resolved.
func (g *Gateway) Inspect(ctx context.Context, handle string) *ContainerInfo {
	info, err := g.client.InspectContainer(ctx, handle)
	if err != nil {
		if !errors.Is(err, ErrContainerNotFound) {
			g.logger.Warn("failed to inspect container", "container", handle, "error", err)
		}
		return nil
	}
	return info
}

// FetchLogs returns the last tail lines of combined stdout and stderr with
// timestamps. Failures are reported in the returned text.
func (g *Gateway) FetchLogs(ctx context.Context, handle string, tail int) string {
	opts := LogOptions{Tail: "all", Timestamps: true}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}

	reader, err := g.client.ContainerLogs(ctx, handle, opts)
	if err != nil {
		return logsPlaceholder(err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return logsPlaceholder(err)
	}
	return buf.String()
}

func logsPlaceholder(err error) string {
	return "Error fetching logs: " + err.Error()
}

// StopAndRemove stops and removes a container. It reports whether this call
// removed it: a handle that no longer resolves yields false without a
// warning. Errors are logged, never returned.
func (g *Gateway) StopAndRemove(ctx context.Context, handle string) bool {
	timeout := g.stopTimeout
	if err := g.client.StopContainer(ctx, handle, &timeout); err != nil &&
		!errors.Is(err, ErrContainerNotFound) && !errors.Is(err, ErrContainerNotRunning) {
		g.logger.Warn("failed to stop container", "container", handle, "error", err)
	}

	err := g.client.RemoveContainer(ctx, handle, RemoveOptions{Force: true, RemoveVolumes: true})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrContainerNotFound):
		g.logger.Debug("container already gone", "container", handle)
		return false
	default:
		g.logger.Warn("failed to remove container", "container", handle, "error", err)
		return false
	}
}

// ContainerExists reports whether handle still resolves on the daemon.
func (g *Gateway) ContainerExists(ctx context.Context, handle string) (bool, error) {
	_, err := g.client.InspectContainer(ctx, handle)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// RemoveImage force-removes an image. It reports whether the image is gone
// afterwards; errors are logged, never returned.
func (g *Gateway) RemoveImage(ctx context.Context, tag string) bool {
	err := g.client.RemoveImage(ctx, tag, true)
	switch {
	case err == nil, errors.Is(err, ErrImageNotFound):
		return true
	default:
		g.logger.Warn("failed to remove image", "image", tag, "error", err)
		return false
	}
}

// =============================================================================
// Health
// =============================================================================

// Ping checks that the daemon is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}

// NetworkReady reports whether the routing network exists.
func (g *Gateway) NetworkReady(ctx context.Context) (bool, error) {
	return g.client.NetworkExists(ctx, g.network)
}
