package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkspace_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data", "repos")

	ws, err := NewWorkspace(root)
	require.NoError(t, err)

	info, err := os.Stat(ws.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewWorkspace_EmptyRoot(t *testing.T) {
	_, err := NewWorkspace("")
	assert.Error(t, err)
}

func TestWorkspace_PrepareIsEmpty(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	dir, err := ws.Prepare("abcd1234")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "abcd1234"), dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("x"), 0o644))

	dir, err = ws.Prepare("abcd1234")
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkspace_Remove(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	dir, err := ws.Prepare("abcd1234")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch"), 0o644))

	require.NoError(t, ws.Remove("abcd1234"))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Removing again is fine.
	assert.NoError(t, ws.Remove("abcd1234"))
}

func TestWorkspace_RejectsEscapingIDs(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "../etc", "a/b"} {
		t.Run(id, func(t *testing.T) {
			_, err := ws.Prepare(id)
			assert.Error(t, err)
			assert.Error(t, ws.Remove(id))
		})
	}
}
