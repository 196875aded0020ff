package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/minideploy/internal/core/deployment"
)

// Workspace owns per-deployment checkout directories under a common root.
type Workspace struct {
	root string
}

// NewWorkspace ensures the workspace root exists.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Prepare returns an empty directory for id, removing any previous contents.
func (w *Workspace) Prepare(id string) (string, error) {
	dir, err := w.resolve(id)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("cleanup workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Remove deletes the directory for id. A missing directory is not an error.
func (w *Workspace) Remove(id string) error {
	dir, err := w.resolve(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// resolve maps id to a directory strictly inside the root.
func (w *Workspace) resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("workspace identifier cannot be empty")
	}
	dir := deployment.SourceDir(w.root, id)
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("refusing workspace path outside root: %q", id)
	}
	return dir, nil
}
