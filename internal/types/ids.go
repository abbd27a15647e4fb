// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type MessageID string
type TaskID string
type RunID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}
