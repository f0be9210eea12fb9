// Package catalog resolves model metadata: which models exist, where their
// checkpoints live, and which engine recipe runs them. It is the read-only
// collaborator the manager consults before loading; download and registry
// sync are out of scope.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// catalogFile mirrors the on-disk models.yaml layout.
type catalogFile struct {
	Models []catalogEntry `yaml:"models"`
}

type catalogEntry struct {
	Name       string   `yaml:"name"`
	Checkpoint string   `yaml:"checkpoint"`
	Recipe     string   `yaml:"recipe"`
	Labels     []string `yaml:"labels"`
	CtxSize    int      `yaml:"ctx_size"`
}

// Catalog is an immutable snapshot of known models.
type Catalog struct {
	models map[string]types.Model
}

// New builds a catalog from in-memory entries. Used by tests and by
// callers that assemble catalogs programmatically.
func New(models []types.Model) *Catalog {
	c := &Catalog{models: make(map[string]types.Model, len(models))}
	for _, m := range models {
		if m.Recipe == "" {
			m.Recipe = "llamacpp"
		}
		c.models[m.Name] = m
	}
	return c
}

// LoadFile reads a models.yaml catalog.
func LoadFile(path string) (*Catalog, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{models: make(map[string]types.Model, len(f.Models))}
	for _, e := range f.Models {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry without a name")
		}
		recipe := e.Recipe
		if recipe == "" {
			recipe = "llamacpp"
		}
		cp, err := fsutil.ExpandHome(e.Checkpoint)
		if err != nil {
			return nil, err
		}
		c.models[e.Name] = types.Model{
			Name:       e.Name,
			Checkpoint: cp,
			Recipe:     recipe,
			Labels:     e.Labels,
			CtxSize:    e.CtxSize,
			Downloaded: fsutil.PathExists(cp),
		}
	}
	return c, nil
}

// LoadDir scans a directory for *.gguf files and builds a catalog from
// filenames. The name is the full filename; the recipe defaults to
// llamacpp.
func LoadDir(dir string) (*Catalog, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	c := &Catalog{models: make(map[string]types.Model)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		c.models[name] = types.Model{
			Name:       name,
			Checkpoint: p,
			Recipe:     "llamacpp",
			Downloaded: true,
		}
	}
	return c, nil
}

// Merge overlays b onto a; entries in b win on name collision.
func Merge(a, b *Catalog) *Catalog {
	out := &Catalog{models: make(map[string]types.Model)}
	if a != nil {
		for k, v := range a.models {
			out.models[k] = v
		}
	}
	if b != nil {
		for k, v := range b.models {
			out.models[k] = v
		}
	}
	return out
}

// Find returns the model with the given name.
func (c *Catalog) Find(name string) (types.Model, bool) {
	m, ok := c.models[name]
	return m, ok
}

// List returns all models sorted by name. When downloadedOnly is set,
// entries whose checkpoint is missing on disk are skipped.
func (c *Catalog) List(downloadedOnly bool) []types.Model {
	out := make([]types.Model, 0, len(c.models))
	for _, m := range c.models {
		if downloadedOnly && !m.Downloaded {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports the number of known models.
func (c *Catalog) Len() int { return len(c.models) }
