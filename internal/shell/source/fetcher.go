// Package source materializes repositories into per-deployment directories.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrEmptyLocation is returned when no repository location is given.
var ErrEmptyLocation = errors.New("repository location cannot be empty")

// Fetcher retrieves the contents of location into dir. dir exists and is
// empty when Fetch is called.
type Fetcher interface {
	Fetch(ctx context.Context, location, dir string) error
}

// FetchError is a failed retrieval with the client's output kept verbatim.
type FetchError struct {
	Location string
	Output   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("fetch %s: %v: %s", e.Location, e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("fetch %s: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the client's output, or the error text when there was
// none.
func (e *FetchError) Diagnostic() string {
	if strings.TrimSpace(e.Output) != "" {
		return e.Output
	}
	return e.Err.Error()
}

// =============================================================================
// Git
// =============================================================================

// GitFetcher shallow-clones repositories with the git command line client.
type GitFetcher struct {
	Binary string // defaults to "git"
	Depth  int    // defaults to 1
}

// NewGitFetcher returns a fetcher using git from PATH.
func NewGitFetcher() *GitFetcher {
	return &GitFetcher{Binary: "git", Depth: 1}
}

// Fetch clones location into dir.
func (g *GitFetcher) Fetch(ctx context.Context, location, dir string) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return ErrEmptyLocation
	}
	if dir == "" {
		return fmt.Errorf("destination cannot be empty")
	}

	binary := g.Binary
	if binary == "" {
		binary = "git"
	}
	depth := g.Depth
	if depth <= 0 {
		depth = 1
	}

	cmd := exec.CommandContext(ctx, binary, "clone", "--depth", strconv.Itoa(depth), "--", location, ".")
	cmd.Dir = dir
	// Never prompt for credentials.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &FetchError{Location: location, Output: string(output), Err: err}
	}
	return nil
}
