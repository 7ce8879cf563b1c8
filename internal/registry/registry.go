// Package registry holds the fixed catalog of cancer categories: for every
// category the dataset locator, the charts drawn from it and its text panels.
//
// The catalog is declarative data (catalog.yaml, embedded at build time). A
// Registry is immutable once built and safe to share between goroutines.
package registry

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"oncostats/pkg/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// UnknownCategoryError is returned when an id is not in the catalog.
type UnknownCategoryError struct {
	ID string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q", e.ID)
}

type catalogFile struct {
	Overview   models.Overview        `yaml:"overview"`
	Categories []models.CategoryEntry `yaml:"categories"`
}

type Registry struct {
	overview models.Overview
	order    []string
	byID     map[string]models.CategoryEntry
}

// Default builds the registry from the embedded catalog.
func Default() (*Registry, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for program start-up and tests; it panics when the
// embedded catalog is invalid.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("registry: embedded catalog: %v", err))
	}
	return r
}

// LoadFile builds the registry from a catalog file on disk.
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(b)
}

// Load uses the catalog file at path, or the embedded catalog when path is
// empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Parse decodes a YAML catalog and checks every entry.
func Parse(b []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Overview, f.Categories)
}

// New builds a registry from entries in display order.
func New(overview models.Overview, entries []models.CategoryEntry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}
	r := &Registry{
		overview: overview,
		order:    make([]string, 0, len(entries)),
		byID:     make(map[string]models.CategoryEntry, len(entries)),
	}
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("category #%d: %w", i, err)
		}
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %q", e.ID)
		}
		r.byID[e.ID] = e.Clone()
		r.order = append(r.order, e.ID)
	}
	return r, nil
}

func validateEntry(e models.CategoryEntry) error {
	if e.ID == "" {
		return fmt.Errorf("id required")
	}
	if e.Source == "" {
		return fmt.Errorf("%s: source required", e.ID)
	}
	if len(e.Charts) == 0 {
		return fmt.Errorf("%s: at least one chart required", e.ID)
	}
	for _, c := range e.Charts {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%s: %w", e.ID, err)
		}
	}
	if len(e.Text) != len(models.Sections) {
		return fmt.Errorf("%s: expected %d text sections, got %d", e.ID, len(models.Sections), len(e.Text))
	}
	for _, s := range models.Sections {
		if _, ok := e.Text[s]; !ok {
			return fmt.Errorf("%s: missing text section %q", e.ID, s)
		}
	}
	return nil
}

// Lookup returns a copy of the entry for id.
func (r *Registry) Lookup(id string) (models.CategoryEntry, error) {
	e, ok := r.byID[id]
	if !ok {
		return models.CategoryEntry{}, &UnknownCategoryError{ID: id}
	}
	return e.Clone(), nil
}

// List returns the category ids in display order.
func (r *Registry) List() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Overview() models.Overview {
	return r.overview
}

// Sources returns every distinct dataset locator, in display order.
func (r *Registry) Sources() []string {
	seen := make(map[string]struct{}, len(r.order))
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		src := r.byID[id].Source
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// BySource returns the ids of every category backed by locator.
func (r *Registry) BySource(locator string) []string {
	var out []string
	for _, id := range r.order {
		if r.byID[id].Source == locator {
			out = append(out, id)
		}
	}
	return out
}
