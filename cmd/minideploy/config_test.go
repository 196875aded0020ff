package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultDSN, cfg.Database.DSN)
	assert.Equal(t, "", cfg.Docker.Host)
	assert.Equal(t, "proxy", cfg.Docker.Network)
	assert.Equal(t, "lvh.me", cfg.Domain.BaseDomain)
	assert.Equal(t, "http://localhost:3000", cfg.Domain.DashboardURL)
	assert.Equal(t, "http", cfg.Domain.PreviewScheme)
	assert.False(t, cfg.Domain.EnableTLS)
	assert.Equal(t, DefaultWorkspaceRoot, cfg.Workspace.Root)
	assert.Equal(t, int64(0), cfg.Pipeline.MaxConcurrentBuilds)
	assert.Equal(t, 500, cfg.Pipeline.LogTail)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.StopTimeout)
	assert.Equal(t, "*", cfg.CORS.AllowedOrigin)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

docker:
  network: "web"

domain:
  base_domain: "apps.example.com"
  preview_scheme: "https"
  enable_tls: true
  cert_resolver: "letsencrypt"

workspace:
  root: "/srv/repos"

pipeline:
  max_concurrent_builds: 2
  log_tail: 100

recipe:
  node_image: "node:20-alpine"

log:
  level: "debug"
  format: "text"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "web", cfg.Docker.Network)
	assert.Equal(t, "apps.example.com", cfg.Domain.BaseDomain)
	assert.Equal(t, "https", cfg.Domain.PreviewScheme)
	assert.True(t, cfg.Domain.EnableTLS)
	assert.Equal(t, "letsencrypt", cfg.Domain.CertResolver)
	assert.Equal(t, "/srv/repos", cfg.Workspace.Root)
	assert.Equal(t, int64(2), cfg.Pipeline.MaxConcurrentBuilds)
	assert.Equal(t, 100, cfg.Pipeline.LogTail)
	assert.Equal(t, "node:20-alpine", cfg.Recipe.NodeImage)
	assert.Equal(t, "", cfg.Recipe.PythonImage)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("MINIDEPLOY_SERVER_PORT", "3000")
	t.Setenv("MINIDEPLOY_DATABASE_DSN", "/custom/path.db")
	t.Setenv("MINIDEPLOY_DOMAIN_BASE_DOMAIN", "preview.local")
	t.Setenv("MINIDEPLOY_WORKSPACE_ROOT", "/custom/repos")
	t.Setenv("MINIDEPLOY_PIPELINE_MAX_CONCURRENT_BUILDS", "4")
	t.Setenv("MINIDEPLOY_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "preview.local", cfg.Domain.BaseDomain)
	assert.Equal(t, "/custom/repos", cfg.Workspace.Root)
	assert.Equal(t, int64(4), cfg.Pipeline.MaxConcurrentBuilds)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("database:\n  dsn: /from/file.db\n"), 0644))
	t.Setenv("MINIDEPLOY_DATABASE_DSN", "/from/env.db")

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "/from/env.db", cfg.Database.DSN)
}

func TestLoadConfig_DataDirDerivesPaths(t *testing.T) {
	clearEnv(t)

	t.Setenv("MINIDEPLOY_DATA_DIR", "/var/lib/minideploy")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/minideploy/minideploy.db", cfg.Database.DSN)
	assert.Equal(t, "/var/lib/minideploy/repos", cfg.Workspace.Root)
}

func TestLoadConfig_ExplicitDSNOverridesDataDir(t *testing.T) {
	clearEnv(t)

	t.Setenv("MINIDEPLOY_DATA_DIR", "/var/lib/minideploy")
	t.Setenv("MINIDEPLOY_DATABASE_DSN", "/custom/path.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "/var/lib/minideploy/repos", cfg.Workspace.Root)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"MINIDEPLOY_SERVER_PORT": "70000"}},
		{"empty base domain", map[string]string{"MINIDEPLOY_DOMAIN_BASE_DOMAIN": " "}},
		{"negative build limit", map[string]string{"MINIDEPLOY_PIPELINE_MAX_CONCURRENT_BUILDS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "invalid", ""} {
		for _, format := range []string{"json", "text"} {
			logger := SetupLogger(&Config{Log: LogConfig{Level: level, Format: format}})
			assert.NotNil(t, logger, "level=%q format=%q", level, format)
		}
	}
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 5000,
		},
	}

	assert.Equal(t, "localhost:5000", cfg.Server.Address())
}

func TestServerError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ServerError{Op: "NewServer", Err: cause, ExitCode: ExitDockerError}

	assert.Equal(t, "NewServer: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

// =============================================================================
// Command Line Tests
// =============================================================================

func TestRun_Version(t *testing.T) {
	assert.Equal(t, ExitSuccess, run([]string{"-version"}))
}

func TestRun_CheckConfig(t *testing.T) {
	clearEnv(t)

	assert.Equal(t, ExitSuccess, run([]string{"-check-config"}))
}

func TestRun_CheckConfigRejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("MINIDEPLOY_SERVER_PORT", "0")

	assert.Equal(t, ExitConfigError, run([]string{"-check-config"}))
}

func TestRun_UnknownFlag(t *testing.T) {
	assert.Equal(t, ExitConfigError, run([]string{"-no-such-flag"}))
}

func TestExitCode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	wrapped := fmt.Errorf("startup: %w", &ServerError{Op: "NewServer", Err: errors.New("no daemon"), ExitCode: ExitDockerError})
	assert.Equal(t, ExitDockerError, exitCode(logger, "failed", wrapped))
	assert.Equal(t, ExitConfigError, exitCode(logger, "failed", errors.New("plain")))
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"MINIDEPLOY_SERVER_HOST",
		"MINIDEPLOY_SERVER_PORT",
		"MINIDEPLOY_DATABASE_DSN",
		"MINIDEPLOY_DATA_DIR",
		"MINIDEPLOY_DOCKER_HOST",
		"MINIDEPLOY_DOCKER_NETWORK",
		"MINIDEPLOY_DOMAIN_BASE_DOMAIN",
		"MINIDEPLOY_WORKSPACE_ROOT",
		"MINIDEPLOY_PIPELINE_MAX_CONCURRENT_BUILDS",
		"MINIDEPLOY_LOG_LEVEL",
		"MINIDEPLOY_LOG_FORMAT",
	}
	for _, v := range envVars {
		// Setenv registers restoration of the original value.
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
