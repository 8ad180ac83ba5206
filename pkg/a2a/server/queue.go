package server

import (
	"context"
	"errors"
	"sync"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// ErrQueueClosed is returned when enqueuing on a closed queue.
var ErrQueueClosed = errors.New("event queue is closed")

// EventQueue carries events from an executor to the server.
type EventQueue interface {
	// Enqueue adds an event, blocking while the queue is full.
	Enqueue(ctx context.Context, event a2a.Event) error
}

// ChannelQueue is a buffered, channel-based EventQueue.
type ChannelQueue struct {
	events chan a2a.Event
	done   chan struct{}
	once   sync.Once
	abort  sync.Once
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewEventQueue creates a queue holding up to size pending events.
func NewEventQueue(size int) *ChannelQueue {
	return &ChannelQueue{
		events: make(chan a2a.Event, size),
		done:   make(chan struct{}),
	}
}

// Enqueue adds an event to the queue.
func (q *ChannelQueue) Enqueue(ctx context.Context, event a2a.Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	select {
	case q.events <- event:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side; it is closed by Close.
func (q *ChannelQueue) Events() <-chan a2a.Event {
	return q.events
}

// Close stops accepting events and closes Events once in-flight sends finish.
// Events already buffered can still be received.
func (q *ChannelQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		go func() {
			q.wg.Wait()
			close(q.events)
		}()
	})
}

// Abort is Close for a consumer that stopped reading: blocked senders are released.
func (q *ChannelQueue) Abort() {
	q.Close()
	q.abort.Do(func() { close(q.done) })
}
