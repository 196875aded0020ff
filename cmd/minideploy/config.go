package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Log       LogConfig       `mapstructure:"log"`
	Domain    DomainConfig    `mapstructure:"domain"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Recipe    RecipeConfig    `mapstructure:"recipe"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host    string `mapstructure:"host"`
	Network string `mapstructure:"network"` // shared network the proxy watches
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DomainConfig holds routing and URL configuration.
type DomainConfig struct {
	BaseDomain    string `mapstructure:"base_domain"`
	DashboardURL  string `mapstructure:"dashboard_url"`
	PreviewScheme string `mapstructure:"preview_scheme"`
	EntryPoint    string `mapstructure:"entrypoint"`    // proxy entrypoint, empty for the proxy default
	EnableTLS     bool   `mapstructure:"enable_tls"`    // add TLS router labels
	CertResolver  string `mapstructure:"cert_resolver"` // only used with enable_tls
}

// WorkspaceConfig holds source checkout configuration.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// PipelineConfig holds deployment pipeline configuration.
type PipelineConfig struct {
	// MaxConcurrentBuilds bounds simultaneous image builds; 0 is unbounded.
	MaxConcurrentBuilds int64         `mapstructure:"max_concurrent_builds"`
	LogTail             int           `mapstructure:"log_tail"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout"`
}

// RecipeConfig selects base images for generated recipes.
type RecipeConfig struct {
	NodeImage      string `mapstructure:"node_image"`
	WebServerImage string `mapstructure:"web_server_image"`
	PythonImage    string `mapstructure:"python_image"`
}

// CORSConfig holds cross-origin configuration for the dashboard.
type CORSConfig struct {
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// =============================================================================
// Config Loading
// =============================================================================

// Locations used when neither the key nor data_dir is set.
const (
	DefaultDSN           = "./data/minideploy.db"
	DefaultWorkspaceRoot = "/data/repos"
)

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("data_dir", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.network", "proxy")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("domain.base_domain", "lvh.me")
	v.SetDefault("domain.dashboard_url", "http://localhost:3000")
	v.SetDefault("domain.preview_scheme", "http")
	v.SetDefault("domain.entrypoint", "")
	v.SetDefault("domain.enable_tls", false)
	v.SetDefault("domain.cert_resolver", "")
	v.SetDefault("pipeline.max_concurrent_builds", 0)
	v.SetDefault("pipeline.log_tail", 500)
	v.SetDefault("pipeline.stop_timeout", "10s")
	v.SetDefault("recipe.node_image", "")
	v.SetDefault("recipe.web_server_image", "")
	v.SetDefault("recipe.python_image", "")
	v.SetDefault("cors.allowed_origin", "*")

	// Enable environment variable overrides. database.dsn and workspace.root
	// have no viper default so that an unset value can follow data_dir.
	v.SetEnvPrefix("MINIDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"database.dsn", "workspace.root"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a malformed one is fatal.
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	dataDir := v.GetString("data_dir")
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = DefaultDSN
		if dataDir != "" {
			cfg.Database.DSN = filepath.Join(dataDir, "minideploy.db")
		}
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = DefaultWorkspaceRoot
		if dataDir != "" {
			cfg.Workspace.Root = filepath.Join(dataDir, "repos")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Domain.BaseDomain) == "" {
		return errors.New("domain.base_domain is required")
	}
	if strings.TrimSpace(c.Workspace.Root) == "" {
		return errors.New("workspace.root is required")
	}
	if c.Pipeline.MaxConcurrentBuilds < 0 {
		return fmt.Errorf("pipeline.max_concurrent_builds cannot be negative, got %d", c.Pipeline.MaxConcurrentBuilds)
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
