package effects

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/user-none/slidefx/logging"
)

// BuiltinDefaultID is the effect every built-in catalog guarantees.
const BuiltinDefaultID = "fade"

// ManifestFile is the name of the manifest at the top of every root.
const ManifestFile = "manifest.yaml"

// ErrEmptyCatalog is returned by Default when no effect could be loaded and
// no built-in is available. It indicates a packaging defect.
var ErrEmptyCatalog = errors.New("effect catalog is empty")

// Manifest lists the effect files of a root in load order.
type Manifest struct {
	Default string   `yaml:"default,omitempty"`
	Effects []string `yaml:"effects"`
}

// Root is one layer of effect sources.
type Root struct {
	Name string
	FS   fs.FS
}

// Store is the effect registry. Build one per application and pass it to
// consumers. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	roots     []Root
	builtins  bool
	defaultID string

	loaded          bool
	list            []*Descriptor
	byID            map[string]*Descriptor
	manifestDefault string
	rejected        []error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRoot adds an overlay root. Overlays load after the built-ins, in the
// order given, and replace earlier effects with the same id.
func WithRoot(name string, fsys fs.FS) StoreOption {
	return func(s *Store) {
		s.roots = append(s.roots, Root{Name: name, FS: fsys})
	}
}

// WithDefaultID selects the effect returned by Default.
func WithDefaultID(id string) StoreOption {
	return func(s *Store) {
		s.defaultID = id
	}
}

// WithoutBuiltins disables the embedded catalog.
func WithoutBuiltins() StoreOption {
	return func(s *Store) {
		s.builtins = false
	}
}

// NewStore creates a store. Nothing is read until the first lookup.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{builtins: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll returns every loaded effect sorted by category then id. The catalog
// is read once and cached until ClearCache or Reload.
func (s *Store) LoadAll() []*Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	out := make([]*Descriptor, len(s.list))
	copy(out, s.list)
	return out
}

// Get returns the effect with the given id.
func (s *Store) Get(id string) (*Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	d, ok := s.byID[id]
	return d, ok
}

// Default returns the fallback effect: the configured default, then the
// manifest default, then the built-in fade. If none of those exist but the
// catalog is not empty, the first effect in catalog order is used.
func (s *Store) Default() (*Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	for _, id := range []string{s.defaultID, s.manifestDefault, BuiltinDefaultID} {
		if id == "" {
			continue
		}
		if d, ok := s.byID[id]; ok {
			return d, nil
		}
	}
	if len(s.list) == 0 {
		return nil, ErrEmptyCatalog
	}
	logging.Logger().Warn("default effect not found, using first effect",
		"configured", s.defaultID, "using", s.list[0].ID)
	return s.list[0], nil
}

// ByCategory returns the effects in one category, sorted by id.
func (s *Store) ByCategory(c Category) []*Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	var out []*Descriptor
	for _, d := range s.list {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// IDs returns every loaded id in catalog order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	ids := make([]string, len(s.list))
	for i, d := range s.list {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of loaded effects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return len(s.list)
}

// Rejected returns the errors for sources skipped during the last load.
func (s *Store) Rejected() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	out := make([]error, len(s.rejected))
	copy(out, s.rejected)
	return out
}

// ClearCache drops the loaded catalog. The next lookup reads the roots again.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.loaded = false
	s.list = nil
	s.byID = nil
	s.manifestDefault = ""
	s.rejected = nil
	s.mu.Unlock()
}

// Reload clears the cache and loads the catalog again, returning the new
// effect count.
func (s *Store) Reload() int {
	s.ClearCache()
	return s.Len()
}

// ensureLoaded reads every root. Caller holds s.mu.
func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.byID = make(map[string]*Descriptor)
	s.list = nil
	s.rejected = nil

	roots := s.roots
	if s.builtins {
		roots = append([]Root{{Name: "builtin", FS: builtinFS()}}, roots...)
	}

	for _, root := range roots {
		s.loadRoot(root)
	}

	s.list = make([]*Descriptor, 0, len(s.byID))
	for _, d := range s.byID {
		s.list = append(s.list, d)
	}
	sort.Slice(s.list, func(i, j int) bool {
		if s.list[i].Category != s.list[j].Category {
			return s.list[i].Category < s.list[j].Category
		}
		return s.list[i].ID < s.list[j].ID
	})

	logging.Logger().Info("effect catalog loaded",
		"effects", len(s.list), "rejected", len(s.rejected), "roots", len(roots))
}

// loadRoot reads one root's manifest and effect files. Failures are recorded
// and logged; they never abort the load.
func (s *Store) loadRoot(root Root) {
	m, err := ReadManifest(root.FS)
	if err != nil {
		s.reject(fmt.Errorf("root %s: %w", root.Name, err))
		return
	}
	if m.Default != "" {
		s.manifestDefault = m.Default
	}

	for _, name := range m.Effects {
		source := root.Name + ":" + name
		data, err := fs.ReadFile(root.FS, path.Clean(name))
		if err != nil {
			s.reject(&ParseError{Source: source, Err: err})
			continue
		}
		d, err := Parse(source, data)
		if err != nil {
			s.reject(err)
			continue
		}
		if prev, ok := s.byID[d.ID]; ok {
			logging.Logger().Debug("effect overridden", "id", d.ID, "previous", prev.Source, "source", d.Source)
		}
		s.byID[d.ID] = d
	}
}

func (s *Store) reject(err error) {
	s.rejected = append(s.rejected, err)
	logging.Logger().Warn("effect source skipped", "error", err)
}

// ReadManifest parses the manifest at the top of fsys.
func ReadManifest(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
