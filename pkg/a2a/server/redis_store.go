package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// DefaultRedisKeyPrefix namespaces task keys.
const DefaultRedisKeyPrefix = "a2a:"

// RedisTaskStore keeps each task as a JSON string, with a per-context index of
// task ids.
type RedisTaskStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ TaskStore = (*RedisTaskStore)(nil)

// NewRedisTaskStore creates a store on client. A zero ttl keeps tasks forever.
func NewRedisTaskStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisTaskStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisTaskStore{client: client, keyPrefix: keyPrefix + "task:", ttl: ttl}
}

// DialRedisTaskStore connects with opts and checks the connection.
func DialRedisTaskStore(ctx context.Context, opts *redis.Options, keyPrefix string, ttl time.Duration) (*RedisTaskStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return NewRedisTaskStore(client, keyPrefix, ttl), nil
}

// Close closes the store
func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}

func (s *RedisTaskStore) taskKey(taskID string) string {
	return s.keyPrefix + "data:" + taskID
}

func (s *RedisTaskStore) contextKey(contextID string) string {
	return s.keyPrefix + "context:" + contextID
}

// Save creates or replaces a task.
func (s *RedisTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, s.ttl)
	if task.ContextID != "" {
		pipe.SAdd(ctx, s.contextKey(task.ContextID), task.ID)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.contextKey(task.ContextID), s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// Get returns a task, or (nil, nil) when it does not exist.
func (s *RedisTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	return decodeTask(data)
}

// Delete removes a task and its context index entry.
func (s *RedisTaskStore) Delete(ctx context.Context, taskID string) error {
	task, err := s.Get(ctx, taskID)
	if err != nil || task == nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.taskKey(taskID))
	if task.ContextID != "" {
		pipe.SRem(ctx, s.contextKey(task.ContextID), taskID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// TaskIDsByContext lists the ids of the tasks saved under contextID.
func (s *RedisTaskStore) TaskIDsByContext(ctx context.Context, contextID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.contextKey(contextID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of context %s: %w", contextID, err)
	}
	return ids, nil
}
