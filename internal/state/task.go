package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/user/foundry/internal/types"
)

// TaskStore is a JSON-file-backed agent task list, stored at
// <root>/tasks.json.
type TaskStore struct {
	root string
	mu   sync.RWMutex
}

// NewTaskStore creates a file-backed TaskStore rooted at the given directory.
func NewTaskStore(root string) *TaskStore {
	return &TaskStore{root: root}
}

func (s *TaskStore) path() string {
	return filepath.Join(s.root, "tasks.json")
}

func (s *TaskStore) load() ([]*types.AgentTask, error) {
	var tasks []*types.AgentTask
	if err := readJSON(s.path(), &tasks); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) save(tasks []*types.AgentTask) error {
	if err := writeJSON(s.path(), tasks); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	return nil
}

// Add appends a task.
func (s *TaskStore) Add(_ context.Context, task *types.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	return s.save(append(tasks, task))
}

// SetStatus updates the status of the task with the given ID, stamping
// EndedAt for terminal statuses.
func (s *TaskStore) SetStatus(_ context.Context, id types.TaskID, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.ID == id {
			t.Status = status
			if status == types.TaskCompleted || status == types.TaskFailed {
				now := nowFunc()
				t.EndedAt = &now
			}
			return s.save(tasks)
		}
	}
	return fmt.Errorf("task not found: %s", id)
}

// List returns all tasks in insertion order.
func (s *TaskStore) List(_ context.Context) ([]*types.AgentTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}
