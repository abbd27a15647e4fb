package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// SettingsStore is a flat key/value file at <root>/settings.json holding
// opaque shell state.
type SettingsStore struct {
	root string
	mu   sync.RWMutex
}

// NewSettingsStore creates a file-backed SettingsStore rooted at the given
// directory.
func NewSettingsStore(root string) *SettingsStore {
	return &SettingsStore{root: root}
}

func (s *SettingsStore) path() string {
	return filepath.Join(s.root, "settings.json")
}

// Get returns the value for the key, or the empty string when unset.
func (s *SettingsStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string)
	if err := readJSON(s.path(), &values); err != nil {
		return "", fmt.Errorf("read settings: %w", err)
	}
	return values[key], nil
}

// Set stores the value under the key.
func (s *SettingsStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]string)
	if err := readJSON(s.path(), &values); err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	values[key] = value
	if err := writeJSON(s.path(), values); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// All returns every stored setting.
func (s *SettingsStore) All(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string)
	if err := readJSON(s.path(), &values); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return values, nil
}
