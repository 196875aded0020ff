package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("minideploy", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	checkConfig := fs.Bool("check-config", false, "Validate configuration and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Printf("minideploy %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	if *checkConfig {
		fmt.Printf("configuration ok: listening on %s, previews under *.%s, checkouts in %s\n",
			cfg.Server.Address(), cfg.Domain.BaseDomain, cfg.Workspace.Root)
		return ExitSuccess
	}

	logger := SetupLogger(cfg)
	logger.Info("starting minideploy",
		"version", Version,
		"config", *configPath,
	)

	server, err := NewServer(cfg, logger)
	if err != nil {
		return exitCode(logger, "failed to create server", err)
	}
	if err := server.Start(context.Background()); err != nil {
		return exitCode(logger, "server error", err)
	}
	return ExitSuccess
}

// exitCode logs err and maps it to the process exit code. Errors that do not
// carry one are treated as configuration errors.
func exitCode(logger *slog.Logger, msg string, err error) int {
	var sErr *ServerError
	if !errors.As(err, &sErr) {
		logger.Error(msg, "error", err)
		return ExitConfigError
	}
	logger.Error(msg, "error", sErr.Err, "operation", sErr.Op)
	return sErr.ExitCode
}
