package detect

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/artpar/minideploy/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

// =============================================================================
// Classification Rule Tests
// =============================================================================

func TestClassify_TableDriven(t *testing.T) {
	tests := []struct {
		name      string
		tree      fstest.MapFS
		archetype domain.Archetype
		port      int
		manifest  string
	}{
		{
			name:      "requirements file",
			tree:      fstest.MapFS{"requirements.txt": file("flask\n")},
			archetype: domain.ArchetypePython,
			port:      8000,
			manifest:  RequirementsFile,
		},
		{
			name:      "pyproject",
			tree:      fstest.MapFS{"pyproject.toml": file("[project]\nname='x'\n")},
			archetype: domain.ArchetypePython,
			port:      8000,
			manifest:  PyProjectFile,
		},
		{
			name:      "react dependency",
			tree:      fstest.MapFS{"package.json": file(`{"dependencies":{"react":"^18.0.0"}}`)},
			archetype: domain.ArchetypeReact,
			port:      80,
			manifest:  PackageJSONFile,
		},
		{
			name:      "react-dom dev dependency",
			tree:      fstest.MapFS{"package.json": file(`{"devDependencies":{"react-dom":"^18.0.0"}}`)},
			archetype: domain.ArchetypeReact,
			port:      80,
			manifest:  PackageJSONFile,
		},
		{
			name:      "next without react",
			tree:      fstest.MapFS{"package.json": file(`{"dependencies":{"next":"14.0.0"}}`)},
			archetype: domain.ArchetypeNext,
			port:      3000,
			manifest:  PackageJSONFile,
		},
		{
			name:      "express server",
			tree:      fstest.MapFS{"package.json": file(`{"dependencies":{"express":"^4"}}`)},
			archetype: domain.ArchetypeNode,
			port:      3000,
			manifest:  PackageJSONFile,
		},
		{
			name:      "start script only",
			tree:      fstest.MapFS{"package.json": file(`{"scripts":{"start":"node app.js"}}`)},
			archetype: domain.ArchetypeNode,
			port:      3000,
			manifest:  PackageJSONFile,
		},
		{
			name:      "package.json without signals",
			tree:      fstest.MapFS{"package.json": file(`{"name":"lib","dependencies":{"lodash":"4"}}`)},
			archetype: domain.ArchetypeNode,
			port:      3000,
		},
		{
			name:      "empty tree",
			tree:      fstest.MapFS{},
			archetype: domain.ArchetypeNode,
			port:      3000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.tree)
			assert.Equal(t, tt.archetype, got.Archetype)
			assert.Equal(t, tt.port, got.Port)
			assert.Equal(t, tt.manifest, got.Manifest)
		})
	}
}

func TestClassify_PythonPrecedesReact(t *testing.T) {
	tree := fstest.MapFS{
		"requirements.txt": file("django\n"),
		"package.json":     file(`{"dependencies":{"react":"18"}}`),
	}

	got := Classify(tree)
	assert.Equal(t, domain.ArchetypePython, got.Archetype)
	assert.Equal(t, 8000, got.Port)
}

func TestClassify_ReactPrecedesNext(t *testing.T) {
	// Next projects normally also depend on react; rule 2 wins.
	tree := fstest.MapFS{
		"package.json": file(`{"dependencies":{"next":"14","react":"18","react-dom":"18"}}`),
	}

	assert.Equal(t, domain.ArchetypeReact, Classify(tree).Archetype)
}

func TestClassify_NonStringManifestValues(t *testing.T) {
	tests := []struct {
		name      string
		manifest  string
		archetype domain.Archetype
		decided   bool
	}{
		{
			name:      "object dependency next to react",
			manifest:  `{"dependencies":{"react":"^18.2.0","some-lib":{"version":"1.0"}}}`,
			archetype: domain.ArchetypeReact,
			decided:   true,
		},
		{
			name:      "workspace dev dependency next to next",
			manifest:  `{"dependencies":{"next":"14"},"devDependencies":{"tooling":true}}`,
			archetype: domain.ArchetypeNext,
			decided:   true,
		},
		{
			name:      "non-string start script",
			manifest:  `{"scripts":{"start":["node","app.js"]}}`,
			archetype: domain.ArchetypeNode,
			decided:   true,
		},
		{
			name:      "null start script",
			manifest:  `{"scripts":{"start":null}}`,
			archetype: domain.ArchetypeNode,
		},
		{
			name:      "empty start script",
			manifest:  `{"scripts":{"start":""}}`,
			archetype: domain.ArchetypeNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(fstest.MapFS{"package.json": file(tt.manifest)})
			assert.Equal(t, tt.archetype, got.Archetype)
			if tt.decided {
				assert.Equal(t, PackageJSONFile, got.Manifest)
			} else {
				assert.Empty(t, got.Manifest)
			}
		})
	}
}

func TestClassify_MalformedManifestFallsThrough(t *testing.T) {
	tree := fstest.MapFS{"package.json": file(`{"dependencies": {"react": `)}

	got := Classify(tree)
	assert.Equal(t, domain.ArchetypeNode, got.Archetype)
	assert.Equal(t, 3000, got.Port)
	assert.Empty(t, got.Manifest)
}

func TestClassify_ManifestIsDirectory(t *testing.T) {
	tree := fstest.MapFS{
		"requirements.txt/readme": file("not a manifest"),
		"package.json/x":          file("{}"),
	}

	assert.Equal(t, domain.ArchetypeNode, Classify(tree).Archetype)
}

func TestClassify_Deterministic(t *testing.T) {
	tree := fstest.MapFS{"package.json": file(`{"dependencies":{"express":"4","next":"14"}}`)}

	first := Classify(tree)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Classify(tree))
	}
	assert.Equal(t, domain.ArchetypeNext, first.Archetype)
}

func TestClassify_OnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"dependencies":{"react":"18"}}`), 0o644))

	got := Classify(os.DirFS(dir))
	assert.Equal(t, domain.ArchetypeReact, got.Archetype)
}

func TestClassify_MissingDirectory(t *testing.T) {
	got := Classify(os.DirFS(filepath.Join(t.TempDir(), "does-not-exist")))
	assert.Equal(t, domain.ArchetypeNode, got.Archetype)
	assert.Equal(t, 3000, got.Port)
}
