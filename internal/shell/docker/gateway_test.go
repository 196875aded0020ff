package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Stub Client
// =============================================================================

type stubDocker struct {
	mu sync.Mutex

	buildEvents []BuildEvent
	buildErr    error
	createErr   error
	connectErr  error
	startErr    error
	stopErr     error
	removeErr   error
	restartErr  error
	inspectErr  error
	logsErr     error
	logs        []byte
	imageErr    error
	networkOK   bool

	created   []ContainerSpec
	connected []string
	started   []string
	stopped   []string
	removed   []string
	restarted []string
	images    []string
}

var _ Client = (*stubDocker)(nil)

func (s *stubDocker) BuildImage(_ context.Context, spec BuildSpec, onEvent BuildEventHandler) error {
	for _, ev := range s.buildEvents {
		if onEvent != nil {
			onEvent(ev)
		}
	}
	return s.buildErr
}

func (s *stubDocker) RemoveImage(_ context.Context, image string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, image)
	return s.imageErr
}

func (s *stubDocker) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = append(s.created, spec)
	return "cid-" + spec.Name, nil
}

func (s *stubDocker) StartContainer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, id)
	return s.startErr
}

func (s *stubDocker) StopContainer(_ context.Context, id string, _ *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, id)
	return s.stopErr
}

func (s *stubDocker) RestartContainer(_ context.Context, id string, _ *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarted = append(s.restarted, id)
	return s.restartErr
}

func (s *stubDocker) RemoveContainer(_ context.Context, id string, _ RemoveOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
	return s.removeErr
}

func (s *stubDocker) InspectContainer(_ context.Context, id string) (*ContainerInfo, error) {
	if s.inspectErr != nil {
		return nil, s.inspectErr
	}
	return &ContainerInfo{ID: id, State: ContainerState{Status: ContainerStatusRunning, Running: true}}, nil
}

func (s *stubDocker) ContainerLogs(_ context.Context, _ string, _ LogOptions) (io.ReadCloser, error) {
	if s.logsErr != nil {
		return nil, s.logsErr
	}
	return io.NopCloser(bytes.NewReader(s.logs)), nil
}

func (s *stubDocker) ConnectNetwork(_ context.Context, network, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, network+"/"+containerID)
	return s.connectErr
}

func (s *stubDocker) NetworkExists(_ context.Context, _ string) (bool, error) {
	return s.networkOK, nil
}

func (s *stubDocker) Ping(_ context.Context) error {
	return nil
}

func (s *stubDocker) Close() error {
	return nil
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(stub *stubDocker) *Gateway {
	return NewGateway(stub, GatewayConfig{Network: "proxy"}, setupTestLogger())
}

func notFound(op string) error {
	return NewDockerError(op, "container", "x", "container not found", ErrContainerNotFound)
}

// =============================================================================
// Build Tests
// =============================================================================

func TestGateway_BuildImage_StreamsLines(t *testing.T) {
	stub := &stubDocker{buildEvents: []BuildEvent{
		{Stream: "Step 1/1\n", Raw: []byte(`{"stream":"Step 1/1\n"}`)},
		{Status: "Downloading", Raw: []byte(`{"status":"Downloading"}`)},
	}}
	gw := newTestGateway(stub)

	var lines []string
	out, err := gw.BuildImage(context.Background(), "/src", "minideploy_abc", nil, func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)

	assert.Equal(t, "Step 1/1\n", out)
	assert.Equal(t, []string{`{"stream":"Step 1/1\n"}` + "\n", `{"status":"Downloading"}` + "\n"}, lines)
}

func TestGateway_BuildImage_Failure(t *testing.T) {
	buildErr := NewDockerError("BuildImage", "image", "t", "returned a non-zero code: 1", ErrBuildFailed)
	stub := &stubDocker{
		buildEvents: []BuildEvent{{Stream: "npm ERR!\n", Raw: []byte(`{"stream":"npm ERR!\n"}`)}},
		buildErr:    buildErr,
	}

	out, err := newTestGateway(stub).BuildImage(context.Background(), "/src", "t", nil, nil)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Equal(t, "npm ERR!\n", out)
}

// =============================================================================
// Placement Tests
// =============================================================================

func TestGateway_CreateAndStart(t *testing.T) {
	stub := &stubDocker{}
	gw := newTestGateway(stub)
	labels := map[string]string{"traefik.enable": "true"}

	handle, err := gw.CreateAndStart(context.Background(), "minideploy_abc", "minideploy_abc", 3000, labels)
	require.NoError(t, err)

	assert.Equal(t, "cid-minideploy_abc", handle)
	require.Len(t, stub.created, 1)
	assert.Equal(t, []int{3000}, stub.created[0].ExposedPorts)
	assert.Equal(t, labels, stub.created[0].Labels)
	assert.Equal(t, []string{"proxy/cid-minideploy_abc"}, stub.connected)
	assert.Equal(t, []string{"cid-minideploy_abc"}, stub.started)
	assert.Empty(t, stub.removed)
}

func TestGateway_CreateAndStart_NetworkFailureRemovesContainer(t *testing.T) {
	stub := &stubDocker{connectErr: NewDockerError("ConnectNetwork", "network", "proxy", "network not found", ErrNetworkNotFound)}
	gw := newTestGateway(stub)

	handle, err := gw.CreateAndStart(context.Background(), "img", "name", 80, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkNotFound)
	assert.Empty(t, handle)
	assert.Empty(t, stub.started, "container must not start off the routing network")
	assert.Equal(t, []string{"cid-name"}, stub.removed)
}

func TestGateway_CreateAndStart_StartFailureRemovesContainer(t *testing.T) {
	stub := &stubDocker{startErr: errors.New("port conflict")}

	_, err := newTestGateway(stub).CreateAndStart(context.Background(), "img", "name", 80, nil)

	require.Error(t, err)
	assert.Equal(t, []string{"cid-name"}, stub.removed)
}

func TestGateway_CreateAndStart_CreateFailure(t *testing.T) {
	stub := &stubDocker{createErr: NewDockerError("CreateContainer", "image", "img", "image not found", ErrImageNotFound)}

	_, err := newTestGateway(stub).CreateAndStart(context.Background(), "img", "name", 80, nil)

	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.Empty(t, stub.connected)
}

func TestGateway_Restart(t *testing.T) {
	stub := &stubDocker{}
	require.NoError(t, newTestGateway(stub).Restart(context.Background(), "cid"))
	assert.Equal(t, []string{"cid"}, stub.restarted)

	stub.restartErr = notFound("RestartContainer")
	assert.ErrorIs(t, newTestGateway(stub).Restart(context.Background(), "cid"), ErrContainerNotFound)
}

// =============================================================================
// Best-effort Tests
// =============================================================================

func TestGateway_Inspect(t *testing.T) {
	stub := &stubDocker{}
	info := newTestGateway(stub).Inspect(context.Background(), "cid")
	require.NotNil(t, info)
	assert.True(t, info.State.Running)

	stub.inspectErr = notFound("InspectContainer")
	assert.Nil(t, newTestGateway(stub).Inspect(context.Background(), "cid"))

	stub.inspectErr = errors.New("daemon unavailable")
	assert.Nil(t, newTestGateway(stub).Inspect(context.Background(), "cid"))
}

func TestGateway_FetchLogs_DemuxesStreams(t *testing.T) {
	var framed bytes.Buffer
	_, err := stdcopy.NewStdWriter(&framed, stdcopy.Stdout).Write([]byte("2024-01-01T00:00:00Z listening on 3000\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&framed, stdcopy.Stderr).Write([]byte("2024-01-01T00:00:01Z warning\n"))
	require.NoError(t, err)

	stub := &stubDocker{logs: framed.Bytes()}
	text := newTestGateway(stub).FetchLogs(context.Background(), "cid", 500)

	assert.Equal(t, "2024-01-01T00:00:00Z listening on 3000\n2024-01-01T00:00:01Z warning\n", text)
}

func TestGateway_FetchLogs_PlaceholderOnError(t *testing.T) {
	stub := &stubDocker{logsErr: notFound("ContainerLogs")}

	text := newTestGateway(stub).FetchLogs(context.Background(), "gone", 500)

	assert.Contains(t, text, "Error fetching logs:")
	assert.Contains(t, text, "container not found")
}

func TestGateway_StopAndRemove(t *testing.T) {
	tests := []struct {
		name      string
		stopErr   error
		removeErr error
		want      bool
	}{
		{"running container", nil, nil, true},
		{"already stopped", NewDockerError("StopContainer", "container", "c", "not running", ErrContainerNotRunning), nil, true},
		{"vanished", notFound("StopContainer"), notFound("RemoveContainer"), false},
		{"stop fails, remove succeeds", errors.New("timeout"), nil, true},
		{"remove fails", nil, errors.New("device busy"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDocker{stopErr: tt.stopErr, removeErr: tt.removeErr}
			got := newTestGateway(stub).StopAndRemove(context.Background(), "cid")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"cid"}, stub.stopped)
			assert.Equal(t, []string{"cid"}, stub.removed)
		})
	}
}

func TestGateway_ContainerExists(t *testing.T) {
	stub := &stubDocker{}
	ok, err := newTestGateway(stub).ContainerExists(context.Background(), "cid")
	require.NoError(t, err)
	assert.True(t, ok)

	stub.inspectErr = notFound("InspectContainer")
	ok, err = newTestGateway(stub).ContainerExists(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	stub.inspectErr = errors.New("daemon unavailable")
	ok, err = newTestGateway(stub).ContainerExists(context.Background(), "cid")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestGateway_RemoveImage(t *testing.T) {
	stub := &stubDocker{}
	assert.True(t, newTestGateway(stub).RemoveImage(context.Background(), "minideploy_abc"))

	stub.imageErr = NewDockerError("RemoveImage", "image", "minideploy_abc", "image not found", ErrImageNotFound)
	assert.True(t, newTestGateway(stub).RemoveImage(context.Background(), "minideploy_abc"))

	stub.imageErr = errors.New("image is being used by running container")
	assert.False(t, newTestGateway(stub).RemoveImage(context.Background(), "minideploy_abc"))
}

func TestGateway_NetworkReady(t *testing.T) {
	stub := &stubDocker{networkOK: true}
	ok, err := newTestGateway(stub).NetworkReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewGateway_Defaults(t *testing.T) {
	gw := NewGateway(&stubDocker{}, GatewayConfig{}, nil)
	assert.Equal(t, DefaultNetwork, gw.Network())
	assert.Equal(t, DefaultStopTimeout, gw.stopTimeout)
}
