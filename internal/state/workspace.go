package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/user/foundry/internal/types"
	"github.com/user/foundry/internal/workspace"
)

// WorkspaceStore persists the workspace file tree at <root>/workspace.json.
// A missing file yields the default seed tree.
type WorkspaceStore struct {
	root string
	mu   sync.RWMutex
}

// NewWorkspaceStore creates a file-backed WorkspaceStore rooted at the given
// directory.
func NewWorkspaceStore(root string) *WorkspaceStore {
	return &WorkspaceStore{root: root}
}

func (s *WorkspaceStore) path() string {
	return filepath.Join(s.root, "workspace.json")
}

// Load returns the persisted tree, or the default seed tree when none has
// been saved yet.
func (s *WorkspaceStore) Load(_ context.Context) (*types.FileNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var root *types.FileNode
	if err := readJSON(s.path(), &root); err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	if root == nil {
		return workspace.DefaultTree(), nil
	}
	return root, nil
}

// Replace persists the given tree as the whole workspace.
func (s *WorkspaceStore) Replace(_ context.Context, root *types.FileNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.path(), root); err != nil {
		return fmt.Errorf("write workspace: %w", err)
	}
	return nil
}
