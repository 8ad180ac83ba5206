package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

// State keys send_message reads to continue an earlier exchange.
const (
	StateTaskID    = "task_id"
	StateContextID = "context_id"
)

// SendMessageArgs are the arguments of send_message.
type SendMessageArgs struct {
	AgentName string `json:"agent_name" description:"The official name of the friend agent to contact."`
	Task      string `json:"task" description:"The request to send, e.g. a question about availability."`
}

func (h *HostAgent) sendMessageTool() core.BaseTool {
	return tools.MustFunctionTool("send_message",
		"Sends a task to a remote friend agent and returns the response.",
		func(ctx context.Context, toolCtx *core.ToolContext, args SendMessageArgs) ([]map[string]any, error) {
			return h.SendMessage(ctx, args.AgentName, args.Task, toolCtx)
		})
}

// SendMessage sends task to the named friend and returns the parts of the
// artifacts of the resulting task as JSON objects.
func (h *HostAgent) SendMessage(ctx context.Context, agentName, task string, toolCtx *core.ToolContext) ([]map[string]any, error) {
	client, ok := h.client(agentName)
	if !ok {
		return nil, fmt.Errorf("agent %s not found in remote connections", agentName)
	}

	taskID, contextID := uuid.NewString(), uuid.NewString()
	if toolCtx != nil {
		taskID = toolCtx.GetStateString(StateTaskID, taskID)
		contextID = toolCtx.GetStateString(StateContextID, contextID)
	}

	msg := a2a.NewMessage(a2a.RoleUser, uuid.NewString(), a2a.NewTextPart(task))
	msg.TaskID = taskID
	msg.ContextID = contextID

	logger := h.logger.With(zap.String("agent", agentName), zap.String("task_id", taskID), zap.String("context_id", contextID))
	logger.Debug("Sending message", zap.String("task", task))

	ev, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: *msg})
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %s: %w", agentName, err)
	}
	result, ok := ev.(*a2a.Task)
	if !ok {
		logger.Warn("Received a non-task response", zap.String("kind", ev.EventKind()))
		return nil, fmt.Errorf("agent %s answered with a %s instead of a task", agentName, ev.EventKind())
	}
	logger.Debug("Received response", zap.String("task_id", result.ID), zap.String("state", string(result.Status.State)))

	var parts []map[string]any
	for _, artifact := range result.Artifacts {
		for _, part := range artifact.Parts {
			m, err := partMap(part)
			if err != nil {
				return nil, err
			}
			parts = append(parts, m)
		}
	}
	// A friend waiting for input answers in its status message instead.
	if len(parts) == 0 && result.Status.Message != nil {
		for _, part := range result.Status.Message.Parts {
			m, err := partMap(part)
			if err != nil {
				return nil, err
			}
			parts = append(parts, m)
		}
	}
	return parts, nil
}

func partMap(part a2a.Part) (map[string]any, error) {
	data, err := json.Marshal(part)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
