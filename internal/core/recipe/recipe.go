// Package recipe renders container build recipes for detected archetypes.
//
// Each archetype maps to a fixed Dockerfile template parameterized by base
// images and the archetype's conventional port. Rendering is pure; Write is
// the only function that touches the filesystem.
package recipe

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/artpar/minideploy/internal/core/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// FileName is the recipe file written into the source tree.
const FileName = "Dockerfile"

// Default base images.
const (
	DefaultNodeImage      = "node:18-alpine"
	DefaultWebServerImage = "nginx:alpine"
	DefaultPythonImage    = "python:3.11-slim"
)

// Images selects the base images used by the templates.
type Images struct {
	NodeImage      string
	WebServerImage string
	PythonImage    string
}

// DefaultImages returns the default base images.
func DefaultImages() Images {
	return Images{
		NodeImage:      DefaultNodeImage,
		WebServerImage: DefaultWebServerImage,
		PythonImage:    DefaultPythonImage,
	}
}

type templateData struct {
	Images
	Port int
}

// Generator renders and writes recipes.
type Generator struct {
	images Images
}

// NewGenerator creates a generator. Empty image fields take the defaults.
func NewGenerator(images Images) *Generator {
	def := DefaultImages()
	if images.NodeImage == "" {
		images.NodeImage = def.NodeImage
	}
	if images.WebServerImage == "" {
		images.WebServerImage = def.WebServerImage
	}
	if images.PythonImage == "" {
		images.PythonImage = def.PythonImage
	}
	return &Generator{images: images}
}

// Render returns the recipe text for archetype. Unknown archetypes render
// the node recipe.
func (g *Generator) Render(archetype domain.Archetype) (string, error) {
	name := templateName(archetype)
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, name, templateData{
		Images: g.images,
		Port:   archetype.Port(),
	})
	if err != nil {
		return "", fmt.Errorf("render %s recipe: %w", archetype, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// Write renders the recipe for archetype and writes it into sourceDir,
// replacing any recipe already there.
func (g *Generator) Write(sourceDir string, archetype domain.Archetype) (string, error) {
	content, err := g.Render(archetype)
	if err != nil {
		return "", err
	}
	path := filepath.Join(sourceDir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write recipe: %w", err)
	}
	return content, nil
}

func templateName(a domain.Archetype) string {
	switch a {
	case domain.ArchetypeReact, domain.ArchetypeNext, domain.ArchetypePython:
		return string(a) + ".tmpl"
	default:
		return string(domain.ArchetypeNode) + ".tmpl"
	}
}
