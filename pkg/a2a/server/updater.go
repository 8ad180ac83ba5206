package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// TaskUpdater publishes status and artifact updates for one task.
type TaskUpdater struct {
	queue     EventQueue
	taskID    string
	contextID string
}

// NewTaskUpdater creates an updater for taskID in contextID.
func NewTaskUpdater(queue EventQueue, taskID, contextID string) *TaskUpdater {
	return &TaskUpdater{queue: queue, taskID: taskID, contextID: contextID}
}

// UpdateStatus publishes a status change. final marks the last event of the request.
func (u *TaskUpdater) UpdateStatus(ctx context.Context, state a2a.TaskState, message *a2a.Message, final bool) error {
	return u.queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Kind:      a2a.KindStatusUpdate,
		Status:    a2a.NewTaskStatus(state, message),
		Final:     final,
	})
}

// AddArtifact publishes an artifact with a fresh id.
func (u *TaskUpdater) AddArtifact(ctx context.Context, parts []a2a.Part, name string) error {
	return u.queue.Enqueue(ctx, &a2a.TaskArtifactUpdateEvent{
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Kind:      a2a.KindArtifactUpdate,
		Artifact: a2a.Artifact{
			ArtifactID: uuid.NewString(),
			Name:       name,
			Parts:      parts,
		},
		LastChunk: true,
	})
}

// Submit marks the task as submitted.
func (u *TaskUpdater) Submit(ctx context.Context) error {
	return u.UpdateStatus(ctx, a2a.TaskStateSubmitted, nil, false)
}

// StartWork marks the task as working.
func (u *TaskUpdater) StartWork(ctx context.Context) error {
	return u.UpdateStatus(ctx, a2a.TaskStateWorking, nil, false)
}

// Complete marks the task as completed.
func (u *TaskUpdater) Complete(ctx context.Context, message *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateCompleted, message, true)
}

// Failed marks the task as failed.
func (u *TaskUpdater) Failed(ctx context.Context, message *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateFailed, message, true)
}

// Cancel marks the task as canceled.
func (u *TaskUpdater) Cancel(ctx context.Context, message *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateCanceled, message, true)
}

// RequiresInput pauses the task until the client sends another message.
func (u *TaskUpdater) RequiresInput(ctx context.Context, message *a2a.Message, final bool) error {
	return u.UpdateStatus(ctx, a2a.TaskStateInputRequired, message, final)
}

// NewAgentMessage builds an agent message bound to the task.
func (u *TaskUpdater) NewAgentMessage(parts ...a2a.Part) *a2a.Message {
	msg := a2a.NewMessage(a2a.RoleAgent, uuid.NewString(), parts...)
	msg.TaskID = u.taskID
	msg.ContextID = u.contextID
	return msg
}
