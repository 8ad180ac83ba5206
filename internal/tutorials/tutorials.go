// Package tutorials holds the single-agent tutorial programs: a greeter, an
// agent with a clock tool and a question-answering agent that reads session state.
package tutorials

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

const (
	GreetingAgentName = "greeting_agent"
	// GreetingModel is served by OpenAI.
	GreetingModel = "gpt-4o-mini"

	ToolAgentName = "tool_agent"
	ToolModel     = "gemini-2.0-flash-lite"

	// TimeLayout formats get_current_time results.
	TimeLayout = "2006-01-02 15:04:05"
)

// NewGreetingAgent creates an agent that greets the user warmly.
func NewGreetingAgent(model core.LLMConnection, modelName string, logger *zap.Logger) *agents.LlmAgent {
	return newAgent(GreetingAgentName, "A simple agent that greets the user.",
		"You are a friendly agent that greets the user warmly.",
		model, modelName, GreetingModel, logger)
}

// CurrentTime is the result of get_current_time.
type CurrentTime struct {
	CurrentTime string `json:"current_time"`
}

// ClockTool returns get_current_time reading now.
func ClockTool(now func() time.Time) core.BaseTool {
	if now == nil {
		now = time.Now
	}
	return tools.MustFunctionTool("get_current_time",
		"Get the current time in the format YYYY-MM-DD HH:MM:SS",
		func(ctx context.Context, _ *core.ToolContext, _ struct{}) (CurrentTime, error) {
			return CurrentTime{CurrentTime: now().Format(TimeLayout)}, nil
		})
}

// NewToolAgent creates an agent with the clock tool.
func NewToolAgent(model core.LLMConnection, modelName string, logger *zap.Logger) *agents.LlmAgent {
	agent := newAgent(ToolAgentName, "A simple agent that provides various tools.",
		"You are a helpful agent that provides various tools.",
		model, modelName, ToolModel, logger)
	agent.AddTool(ClockTool(nil))
	return agent
}

func newAgent(name, description, instruction string, model core.LLMConnection, modelName, defaultModel string, logger *zap.Logger) *agents.LlmAgent {
	cfg := agents.DefaultLlmAgentConfig()
	cfg.Model = defaultModel
	if modelName != "" {
		cfg.Model = modelName
	}
	agent := agents.NewLlmAgent(name, description, cfg)
	agent.SetInstruction(instruction)
	agent.SetLLMConnection(model)
	if logger != nil {
		agent.SetLogger(logger.With(zap.String("tutorial", name)))
	}
	return agent
}

// FinalResponse returns the text of the last final response in events.
func FinalResponse(events []*core.Event) (string, error) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.IsError() {
			return "", fmt.Errorf("agent %s failed: %s", ev.Author, deref(ev.ErrorMessage))
		}
		if ev.IsFinalResponse() {
			return ev.Text(), nil
		}
	}
	return "", fmt.Errorf("no final response")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
