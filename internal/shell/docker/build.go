package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/archive"
)

// BuildImage creates an image from spec.ContextDir. Every message in the
// daemon's build stream is passed to onEvent before the next one is read.
// A build that reports an error fails with ErrBuildFailed and the daemon's
// error text.
func (d *DockerClient) BuildImage(ctx context.Context, spec BuildSpec, onEvent BuildEventHandler) error {
	if strings.TrimSpace(spec.ContextDir) == "" {
		return NewDockerError("BuildImage", "image", spec.Tag, "build directory cannot be empty", ErrBuildFailed)
	}
	if strings.TrimSpace(spec.Tag) == "" {
		return NewDockerError("BuildImage", "image", "", "image tag cannot be empty", ErrBuildFailed)
	}

	buildCtx, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{})
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, fmt.Sprintf("create build context: %v", err), ErrBuildFailed)
	}
	defer buildCtx.Close()

	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{spec.Tag},
		Dockerfile:  dockerfile,
		Labels:      spec.Labels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrBuildFailed)
	}
	defer resp.Body.Close()

	return decodeBuildStream(resp.Body, spec.Tag, onEvent)
}

// decodeBuildStream reads the newline-delimited JSON build stream, forwarding
// each message and stopping at the first error message.
func decodeBuildStream(r io.Reader, tag string, onEvent BuildEventHandler) error {
	decoder := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return NewDockerError("BuildImage", "image", tag, fmt.Sprintf("decode build output: %v", err), ErrBuildFailed)
		}

		var msg imageBuildMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return NewDockerError("BuildImage", "image", tag, fmt.Sprintf("decode build output: %v", err), ErrBuildFailed)
		}

		event := msg.event(raw)
		if onEvent != nil {
			onEvent(event)
		}

		if event.Error != "" {
			return NewDockerError("BuildImage", "image", tag, event.Error, ErrBuildFailed)
		}
	}
}

type imageBuildMessage struct {
	Stream      string                `json:"stream"`
	Status      string                `json:"status"`
	ID          string                `json:"id"`
	Progress    string                `json:"progress"`
	Error       string                `json:"error"`
	ErrorDetail imageBuildErrorDetail `json:"errorDetail"`
}

type imageBuildErrorDetail struct {
	Message string `json:"message"`
}

func (m imageBuildMessage) errorMessage() string {
	if strings.TrimSpace(m.Error) != "" {
		return strings.TrimSpace(m.Error)
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}

func (m imageBuildMessage) event(raw json.RawMessage) BuildEvent {
	return BuildEvent{
		Stream:   m.Stream,
		Status:   m.Status,
		ID:       m.ID,
		Progress: m.Progress,
		Error:    m.errorMessage(),
		Raw:      raw,
	}
}
