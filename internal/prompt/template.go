package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// ErrTemplateNotFound indicates a missing template document for the requested
// version. This is a configuration error, distinct from a missing preset key
// inside a loaded template.
var ErrTemplateNotFound = fmt.Errorf("prompt: template not found")

// Template is one versioned prompt template document. Preset sections map
// short keys to descriptive text; the free-text sections are appended to every
// assembled prompt.
type Template struct {
	Environments map[string]string `yaml:"environments"`
	Poses        map[string]string `yaml:"poses"`
	Framing      map[string]string `yaml:"framing"`
	Lighting     map[string]string `yaml:"lighting"`
	Ethnicities  map[string]string `yaml:"ethnicities"`
	HairStyles   map[string]string `yaml:"hair_styles"`
	HairColors   map[string]string `yaml:"hair_colors"`
	Quality      string            `yaml:"quality"`
	Output       string            `yaml:"output"`
	Negative     string            `yaml:"negative"`
}

// Library loads versioned templates and caches them for the process lifetime.
// Templates are immutable after load.
type Library struct {
	mu    sync.RWMutex
	cache map[string]*Template
}

// NewLibrary constructs an empty template library backed by the embedded
// template documents.
func NewLibrary() *Library {
	return &Library{cache: make(map[string]*Template)}
}

// Load returns the template for version, reading and caching it on first use.
// Version "v0.1" maps to the document templates/v0_1.yaml.
func (l *Library) Load(version string) (*Template, error) {
	l.mu.RLock()
	tpl, ok := l.cache[version]
	l.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	name := "templates/" + strings.ReplaceAll(version, ".", "_") + ".yaml"
	raw, err := templatesFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q", ErrTemplateNotFound, version)
	}

	tpl = &Template{}
	if err := yaml.Unmarshal(raw, tpl); err != nil {
		return nil, fmt.Errorf("prompt: parse template %q: %w", version, err)
	}

	l.mu.Lock()
	l.cache[version] = tpl
	l.mu.Unlock()
	return tpl, nil
}

// lookup resolves a preset key against a section, degrading to the raw key
// when no mapping exists so an unpolished but valid prompt is still produced.
func lookup(section map[string]string, key string) string {
	if desc, ok := section[key]; ok {
		return desc
	}
	return key
}

// lookupOptional resolves a preset key, returning empty when the key itself is
// empty and the raw key when no mapping exists.
func lookupOptional(section map[string]string, key string) string {
	if key == "" {
		return ""
	}
	return lookup(section, key)
}
