package server

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisTaskStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTaskStore(client, "test:", ttl), mr
}

func stores(t *testing.T) map[string]TaskStore {
	redisStore, _ := newRedisStore(t, 0)
	return map[string]TaskStore{
		"memory": NewInMemoryTaskStore(),
		"redis":  redisStore,
	}
}

func sampleTask(id, contextID string) *a2a.Task {
	return &a2a.Task{
		ID:        id,
		ContextID: contextID,
		Kind:      a2a.KindTask,
		Status:    a2a.NewTaskStatus(a2a.TaskStateWorking, nil),
		History:   []a2a.Message{*a2a.NewMessage(a2a.RoleUser, "m1", a2a.NewTextPart("hi"))},
	}
}

func TestTaskStore_SaveGetDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			missing, err := store.Get(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)

			task := sampleTask("t1", "c1")
			require.NoError(t, store.Save(ctx, task))

			got, err := store.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, task, got)

			// Stored tasks are copies.
			got.Status.State = a2a.TaskStateCompleted
			again, err := store.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateWorking, again.Status.State)

			require.NoError(t, store.Delete(ctx, "t1"))
			gone, err := store.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Nil(t, gone)
			assert.NoError(t, store.Delete(ctx, "t1"))
		})
	}
}

func TestRedisTaskStore_ContextIndex(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleTask("t1", "c1")))
	require.NoError(t, store.Save(ctx, sampleTask("t2", "c1")))
	require.NoError(t, store.Save(ctx, sampleTask("t3", "c2")))

	ids, err := store.TaskIDsByContext(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)

	require.NoError(t, store.Delete(ctx, "t1"))
	ids, err = store.TaskIDsByContext(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids)
}

func TestRedisTaskStore_TTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleTask("t1", "c1")))
	assert.True(t, mr.Exists("test:task:data:t1"))

	mr.FastForward(2 * time.Minute)
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDialRedisTaskStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := DialRedisTaskStore(context.Background(), &redis.Options{Addr: mr.Addr()}, "", 0)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), sampleTask("t1", "")))
	assert.True(t, mr.Exists(DefaultRedisKeyPrefix+"task:data:t1"))

	_, err = DialRedisTaskStore(context.Background(), &redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}, "", 0)
	assert.Error(t, err)
}

func TestEventQueue(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue(2)
	require.NoError(t, q.Enqueue(ctx, a2a.NewMessage(a2a.RoleAgent, "m1")))
	q.Close()
	q.Close()

	var got []a2a.Event
	for ev := range q.Events() {
		got = append(got, ev)
	}
	assert.Len(t, got, 1)
	assert.ErrorIs(t, q.Enqueue(ctx, a2a.NewMessage(a2a.RoleAgent, "m2")), ErrQueueClosed)
}

func TestEventQueue_Abort(t *testing.T) {
	q := NewEventQueue(0)
	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(context.Background(), a2a.NewMessage(a2a.RoleAgent, "m1"))
	}()
	q.Abort()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not return after abort")
	}
}
