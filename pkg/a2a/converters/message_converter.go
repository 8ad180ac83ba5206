package converters

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

// MessageToContent converts an A2A message to GenAI content. The agent role maps
// to the model role.
func MessageToContent(message *a2a.Message) (*genai.Content, error) {
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	parts, err := A2APartsToGenAI(message.Parts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert message %s: %w", message.MessageID, err)
	}
	role := core.RoleUser
	if message.Role == a2a.RoleAgent {
		role = core.RoleModel
	}
	return &genai.Content{Role: role, Parts: parts}, nil
}

// ContentToMessage converts GenAI content to an A2A message with a fresh id. The
// model role maps to the agent role.
func ContentToMessage(content *genai.Content, taskID, contextID string) (*a2a.Message, error) {
	if content == nil {
		return nil, fmt.Errorf("content cannot be nil")
	}
	parts, err := GenAIPartsToA2A(content.Parts)
	if err != nil {
		return nil, err
	}
	role := a2a.RoleUser
	if content.Role == core.RoleModel {
		role = a2a.RoleAgent
	}
	msg := a2a.NewMessage(role, uuid.NewString(), parts...)
	msg.TaskID = taskID
	msg.ContextID = contextID
	return msg, nil
}

// EventParts returns the A2A parts of an agent event's content.
func EventParts(ev *core.Event) ([]a2a.Part, error) {
	if ev == nil || ev.Content == nil {
		return []a2a.Part{}, nil
	}
	return GenAIPartsToA2A(ev.Content.Parts)
}
