// internal/types/interfaces.go
package types

import (
	"context"
)

// MessageStore is the append-only chat log.
type MessageStore interface {
	Append(ctx context.Context, msg *ChatMessage) error
	Tail(ctx context.Context, limit int) ([]*ChatMessage, error)
	Count(ctx context.Context) (int64, error)
}

// TaskStore persists agent tasks across runs.
type TaskStore interface {
	Add(ctx context.Context, task *AgentTask) error
	SetStatus(ctx context.Context, id TaskID, status TaskStatus) error
	List(ctx context.Context) ([]*AgentTask, error)
}

// WorkspaceStore persists the workspace file tree. Replace swaps the whole
// tree; callers mutate by cloning, never in place.
type WorkspaceStore interface {
	Load(ctx context.Context) (*FileNode, error)
	Replace(ctx context.Context, root *FileNode) error
}

// PreviewStore persists the last rendered preview document plus per-file
// application-state snapshots.
type PreviewStore interface {
	SavePreview(ctx context.Context, state *PreviewState) error
	LoadPreview(ctx context.Context) (*PreviewState, error)
	SaveAppState(ctx context.Context, fileName string, snapshot map[string]string) error
	LoadAppState(ctx context.Context, fileName string) (map[string]string, error)
}

// SettingsStore holds opaque shell state (theme preference, panel sizes,
// profile). The core never interprets the values.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
