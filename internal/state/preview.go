package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/user/foundry/internal/preview"
	"github.com/user/foundry/internal/types"
)

// PreviewStore persists the preview documents and the per-file app-state
// snapshots. The preview pair lives at <root>/preview.json; snapshots share
// <root>/appstate.json keyed the same way the sandbox keys localStorage.
type PreviewStore struct {
	root string
	mu   sync.RWMutex
}

// NewPreviewStore creates a file-backed PreviewStore rooted at the given
// directory.
func NewPreviewStore(root string) *PreviewStore {
	return &PreviewStore{root: root}
}

func (s *PreviewStore) previewPath() string {
	return filepath.Join(s.root, "preview.json")
}

func (s *PreviewStore) appStatePath() string {
	return filepath.Join(s.root, "appstate.json")
}

// SavePreview persists the preview state.
func (s *PreviewStore) SavePreview(_ context.Context, state *types.PreviewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.previewPath(), state); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return nil
}

// LoadPreview returns the persisted preview state, or nil when none exists.
func (s *PreviewStore) LoadPreview(_ context.Context) (*types.PreviewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state *types.PreviewState
	if err := readJSON(s.previewPath(), &state); err != nil {
		return nil, fmt.Errorf("read preview: %w", err)
	}
	return state, nil
}

// SaveAppState records the state snapshot for one component file.
func (s *PreviewStore) SaveAppState(_ context.Context, fileName string, snap map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[string]map[string]string)
	if err := readJSON(s.appStatePath(), &all); err != nil {
		return fmt.Errorf("read app state: %w", err)
	}
	all[preview.AppStateKey(fileName)] = snap
	if err := writeJSON(s.appStatePath(), all); err != nil {
		return fmt.Errorf("write app state: %w", err)
	}
	return nil
}

// LoadAppState returns the snapshot recorded for the file, or nil.
func (s *PreviewStore) LoadAppState(_ context.Context, fileName string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]map[string]string)
	if err := readJSON(s.appStatePath(), &all); err != nil {
		return nil, fmt.Errorf("read app state: %w", err)
	}
	return all[preview.AppStateKey(fileName)], nil
}
