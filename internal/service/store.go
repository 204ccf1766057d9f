package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore is a small keyed JSON document on disk, the server-side
// stand-in for browser local storage. Keys are dataset ids.
type LocalStore[T any] struct {
	dataDir string
	file    string
	items   map[string]T
	mu      sync.RWMutex
}

// NewLocalStore creates a store backed by dataDir/file. An empty dataDir
// keeps the store in memory only.
func NewLocalStore[T any](dataDir, file string) *LocalStore[T] {
	s := &LocalStore[T]{
		dataDir: dataDir,
		file:    file,
		items:   make(map[string]T),
	}
	s.loadFromDisk()
	return s
}

// Get returns the value stored under key.
func (s *LocalStore[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

// List returns a copy of all entries.
func (s *LocalStore[T]) List() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]T, len(s.items))
	for k, v := range s.items {
		result[k] = v
	}
	return result
}

// Set stores v under key and persists the store.
func (s *LocalStore[T]) Set(key string, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = v
	return s.saveToDisk()
}

// Delete removes key and persists the store.
func (s *LocalStore[T]) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	return s.saveToDisk()
}

func (s *LocalStore[T]) configFile() string {
	return filepath.Join(s.dataDir, s.file)
}

func (s *LocalStore[T]) loadFromDisk() {
	if s.dataDir == "" {
		return
	}
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var items map[string]T
	if err := json.Unmarshal(data, &items); err != nil {
		return // Invalid JSON, start empty
	}
	if items != nil {
		s.items = items
	}
}

func (s *LocalStore[T]) saveToDisk() error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}

// SelectionStore remembers the selected view setting index per dataset,
// stored as {datasetId: index}.
type SelectionStore struct {
	*LocalStore[int]
}

// NewSelectionStore creates the selection store under dataDir.
func NewSelectionStore(dataDir string) *SelectionStore {
	return &SelectionStore{NewLocalStore[int](dataDir, "selection.json")}
}

// Selected implements settings.Selection.
func (s *SelectionStore) Selected(datasetID string) (int, bool) {
	return s.Get(datasetID)
}

// ViewportStore caches the last map viewport per dataset.
type ViewportStore struct {
	*LocalStore[Viewport]
}

// NewViewportStore creates the viewport store under dataDir.
func NewViewportStore(dataDir string) *ViewportStore {
	return &ViewportStore{NewLocalStore[Viewport](dataDir, "viewports.json")}
}
