package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/foundry/internal/types"
)

// MessageStore is a JSONL-backed append-only chat transcript, stored at
// <root>/messages.jsonl.
type MessageStore struct {
	root string
	mu   sync.Mutex
}

// NewMessageStore creates a file-backed MessageStore rooted at the given
// directory.
func NewMessageStore(root string) *MessageStore {
	return &MessageStore{root: root}
}

func (s *MessageStore) path() string {
	return filepath.Join(s.root, "messages.jsonl")
}

// Append adds a message to the transcript.
func (s *MessageStore) Append(_ context.Context, msg *types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(s.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Tail returns the last N messages; limit <= 0 returns the whole transcript.
func (s *MessageStore) Tail(_ context.Context, limit int) ([]*types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var msgs []*types.ChatMessage
	scanner := bufio.NewScanner(f)
	// Messages may carry base64 image payloads well past the default limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var msg types.ChatMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages file: %w", err)
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Count returns the number of messages in the transcript.
func (s *MessageStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan messages file: %w", err)
	}
	return count, nil
}
