package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/foundry/internal/snapshot"
	"github.com/user/foundry/internal/types"
)

// debounceDelay coalesces rapid editor keystrokes into one regeneration.
const debounceDelay = 300 * time.Millisecond

// Manager regenerates the preview document and its state snapshot as a unit,
// keeps the previous document for critic context, and persists through the
// preview store.
type Manager struct {
	store  types.PreviewStore
	notify func(*types.PreviewState)

	mu      sync.Mutex
	state   types.PreviewState
	pending *time.Timer
}

// NewManager creates a Manager backed by the given store. notify, when
// non-nil, is called after every regeneration (used to push the new document
// to the shell). Previously persisted state is restored if present.
func NewManager(store types.PreviewStore, notify func(*types.PreviewState)) *Manager {
	m := &Manager{store: store, notify: notify}
	if store != nil {
		if prev, err := store.LoadPreview(context.Background()); err == nil && prev != nil {
			m.state = *prev
		}
	}
	return m
}

// State returns a copy of the current preview state.
func (m *Manager) State() types.PreviewState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Regenerate rebuilds the document and snapshot for the file immediately.
func (m *Manager) Regenerate(ctx context.Context, file *types.FileNode) types.PreviewState {
	var snap map[string]string
	doc := ""
	if file != nil && file.Content != "" {
		snap = snapshot.Scan(file.Content)
		doc = Build(file, snap)
	}

	m.mu.Lock()
	m.state.PreviousDoc = m.state.CurrentDoc
	m.state.CurrentDoc = doc
	m.state.Snapshot = snap
	m.state.LastRun = time.Now()
	state := m.state
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SavePreview(ctx, &state); err != nil {
			slog.Warn("persist preview failed", "error", err)
		}
		if file != nil && len(snap) > 0 {
			if err := m.store.SaveAppState(ctx, file.Name, snap); err != nil {
				slog.Warn("persist app state failed", "error", err)
			}
		}
	}
	if m.notify != nil {
		m.notify(&state)
	}
	return state
}

// Schedule queues a debounced regeneration for the file. Calls within the
// debounce window replace the pending one, so the snapshot and document are
// never independently stale by more than one cycle.
func (m *Manager) Schedule(file *types.FileNode) {
	clone := file.Clone()
	m.mu.Lock()
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(debounceDelay, func() {
		m.Regenerate(context.Background(), clone)
	})
	m.mu.Unlock()
}
