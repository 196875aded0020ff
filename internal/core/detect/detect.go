// Package detect classifies a checked-out source tree into a project archetype.
//
// Classification is a pure function of the tree's contents: it reads a few
// manifest files from the given fs.FS and never fails. Anything unreadable or
// malformed is treated as absent and classification falls through to the
// next rule, ending at the node default.
package detect

import (
	"encoding/json"
	"io/fs"

	"github.com/artpar/minideploy/internal/core/domain"
)

// Manifest file names inspected by Classify.
const (
	RequirementsFile = "requirements.txt"
	PyProjectFile    = "pyproject.toml"
	PackageJSONFile  = "package.json"
)

// Result is the outcome of classifying a source tree.
type Result struct {
	Archetype domain.Archetype
	Port      int
	// Manifest is the file that decided the classification, empty for the default.
	Manifest string
}

// packageManifest is the subset of package.json used for classification.
// Values are kept raw: only key presence matters, and real manifests carry
// objects and other non-string values in these maps.
type packageManifest struct {
	Dependencies    map[string]json.RawMessage `json:"dependencies"`
	DevDependencies map[string]json.RawMessage `json:"devDependencies"`
	Scripts         map[string]json.RawMessage `json:"scripts"`
}

var (
	reactPackages  = []string{"react", "react-dom"}
	nextPackages   = []string{"next"}
	serverPackages = []string{"express"}
)

// Classify inspects fsys and returns its archetype and conventional port.
// First match wins:
//  1. requirements.txt or pyproject.toml → python
//  2. package.json depending on react or react-dom → react
//  3. package.json depending on next → next
//  4. package.json depending on express, or declaring a start script → node
//  5. otherwise → node
func Classify(fsys fs.FS) Result {
	for _, name := range []string{RequirementsFile, PyProjectFile} {
		if fileExists(fsys, name) {
			return result(domain.ArchetypePython, name)
		}
	}

	pkg, ok := readPackageManifest(fsys)
	if ok {
		deps := pkg.allDependencies()
		switch {
		case hasAny(deps, reactPackages):
			return result(domain.ArchetypeReact, PackageJSONFile)
		case hasAny(deps, nextPackages):
			return result(domain.ArchetypeNext, PackageJSONFile)
		case hasAny(deps, serverPackages) || pkg.hasScript("start"):
			return result(domain.ArchetypeNode, PackageJSONFile)
		}
	}

	return result(domain.ArchetypeNode, "")
}

func result(a domain.Archetype, manifest string) Result {
	return Result{Archetype: a, Port: a.Port(), Manifest: manifest}
}

func fileExists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

func readPackageManifest(fsys fs.FS) (packageManifest, bool) {
	var pkg packageManifest
	data, err := fs.ReadFile(fsys, PackageJSONFile)
	if err != nil {
		return pkg, false
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, false
	}
	return pkg, true
}

// allDependencies merges runtime and development dependencies.
func (p packageManifest) allDependencies() map[string]json.RawMessage {
	deps := make(map[string]json.RawMessage, len(p.Dependencies)+len(p.DevDependencies))
	for k, v := range p.Dependencies {
		deps[k] = v
	}
	for k, v := range p.DevDependencies {
		deps[k] = v
	}
	return deps
}

// hasScript reports whether name is declared with a non-empty value.
func (p packageManifest) hasScript(name string) bool {
	raw, ok := p.Scripts[name]
	if !ok {
		return false
	}
	switch string(raw) {
	case "", "null", `""`:
		return false
	}
	return true
}

func hasAny(deps map[string]json.RawMessage, names []string) bool {
	for _, n := range names {
		if _, ok := deps[n]; ok {
			return true
		}
	}
	return false
}
