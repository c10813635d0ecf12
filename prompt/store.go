package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store resolves template sources by name.
type Store interface {
	Load(name string) (string, error)
}

// StaticStore serves templates from an in-memory map. Useful for tests and
// as the carrier of the built-in defaults.
type StaticStore struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewStaticStore constructs a StaticStore with a copy of the given map.
func NewStaticStore(templates map[string]string) *StaticStore {
	copied := make(map[string]string, len(templates))
	for k, v := range templates {
		copied[k] = v
	}
	return &StaticStore{templates: copied}
}

// Load implements Store.
func (s *StaticStore) Load(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}
	return src, nil
}

// Add registers or replaces a template source.
func (s *StaticStore) Add(name, src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = src
}

// manifest is the on-disk index mapping template names to files.
type manifest struct {
	Templates map[string]string `yaml:"templates"`
}

// FileStore serves templates from files listed in a YAML manifest
// (templates.yaml) inside the template directory. Files are read on demand;
// the engine caches compiled output.
type FileStore struct {
	dir   string
	index map[string]string
}

// NewFileStore reads the manifest in dir and constructs a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "templates.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading template manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing template manifest: %w", err)
	}
	if len(m.Templates) == 0 {
		return nil, fmt.Errorf("template manifest in %s lists no templates", dir)
	}

	return &FileStore{dir: dir, index: m.Templates}, nil
}

// Load implements Store.
func (s *FileStore) Load(name string) (string, error) {
	file, ok := s.index[name]
	if !ok {
		return "", fmt.Errorf("template %q not listed in manifest", name)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return "", fmt.Errorf("reading template %q: %w", name, err)
	}
	return string(raw), nil
}

// Names returns the template names listed in the manifest.
func (s *FileStore) Names() []string {
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	return names
}
