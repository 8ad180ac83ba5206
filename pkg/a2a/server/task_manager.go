package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// taskManager folds the events of one request into the stored task.
type taskManager struct {
	store   TaskStore
	metrics *metrics
	task    *a2a.Task
	// reply is set when the executor answered with a bare message.
	reply *a2a.Message
}

func newTaskManager(store TaskStore, m *metrics, reqCtx *RequestContext) *taskManager {
	task := reqCtx.CurrentTask
	if task == nil {
		task = &a2a.Task{
			ID:        reqCtx.TaskID,
			ContextID: reqCtx.ContextID,
			Status:    a2a.NewTaskStatus(a2a.TaskStateSubmitted, nil),
			Kind:      a2a.KindTask,
		}
	}
	if reqCtx.Message != nil {
		// The agent's last word precedes the user's reply.
		if prev := task.Status.Message; prev != nil {
			task.History = append(task.History, *prev)
			task.Status.Message = nil
		}
		task.History = append(task.History, *reqCtx.Message)
	}
	return &taskManager{store: store, metrics: m, task: task}
}

// apply updates the task with ev and saves it.
func (m *taskManager) apply(ctx context.Context, ev a2a.Event) error {
	switch e := ev.(type) {
	case *a2a.Message:
		m.reply = e
		return nil
	case *a2a.Task:
		history := m.task.History
		m.task = e
		if len(m.task.History) == 0 {
			m.task.History = history
		}
		m.transition(e.Status.State)
	case *a2a.TaskStatusUpdateEvent:
		m.setStatus(e.Status)
	case *a2a.TaskArtifactUpdateEvent:
		m.addArtifact(e)
	default:
		return fmt.Errorf("unexpected event %T", ev)
	}
	return m.save(ctx)
}

func (m *taskManager) setStatus(status a2a.TaskStatus) {
	if prev := m.task.Status.Message; prev != nil {
		m.task.History = append(m.task.History, *prev)
	}
	m.task.Status = status
	m.transition(status.State)
}

func (m *taskManager) transition(state a2a.TaskState) {
	if m.metrics != nil {
		m.metrics.taskTransitions.WithLabelValues(string(state)).Inc()
	}
}

func (m *taskManager) addArtifact(e *a2a.TaskArtifactUpdateEvent) {
	for i := range m.task.Artifacts {
		if m.task.Artifacts[i].ArtifactID == e.Artifact.ArtifactID {
			if e.Append {
				m.task.Artifacts[i].Parts = append(m.task.Artifacts[i].Parts, e.Artifact.Parts...)
			} else {
				m.task.Artifacts[i] = e.Artifact
			}
			return
		}
	}
	m.task.Artifacts = append(m.task.Artifacts, e.Artifact)
}

// fail records err as the task's terminal status.
func (m *taskManager) fail(ctx context.Context, err error) error {
	msg := a2a.NewMessage(a2a.RoleAgent, uuid.NewString(), a2a.NewTextPart(err.Error()))
	msg.TaskID = m.task.ID
	msg.ContextID = m.task.ContextID
	m.setStatus(a2a.NewTaskStatus(a2a.TaskStateFailed, msg))
	return m.save(ctx)
}

func (m *taskManager) save(ctx context.Context) error {
	if err := m.store.Save(ctx, m.task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// result is what message/send returns: the bare reply when the executor only sent
// a message, else the task.
func (m *taskManager) result(historyLength *int) a2a.Event {
	if m.reply != nil && m.task.Status.State == a2a.TaskStateSubmitted && len(m.task.Artifacts) == 0 {
		return m.reply
	}
	return trimHistory(m.task, historyLength)
}

func trimHistory(task *a2a.Task, historyLength *int) *a2a.Task {
	if historyLength == nil || *historyLength < 0 || len(task.History) <= *historyLength {
		return task
	}
	out := *task
	out.History = task.History[len(task.History)-*historyLength:]
	return &out
}
