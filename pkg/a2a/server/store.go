package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// TaskStore persists tasks between requests.
type TaskStore interface {
	// Save creates or replaces a task.
	Save(ctx context.Context, task *a2a.Task) error
	// Get returns a task, or (nil, nil) when it does not exist.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)
	// Delete removes a task.
	Delete(ctx context.Context, taskID string) error
}

// InMemoryTaskStore keeps tasks in a map. Tasks are copied in and out.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string][]byte
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates an empty store.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{tasks: make(map[string][]byte)}
}

// Save creates or replaces a task.
func (s *InMemoryTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = data
	return nil
}

// Get returns a copy of a task.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	data, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeTask(data)
}

// Delete removes a task.
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

func decodeTask(data []byte) (*a2a.Task, error) {
	var task a2a.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}
