// Package karley is Karley's scheduling assistant: an LlmAgent run by a Runner
// and bridged to A2A by a RunnerExecutor.
package karley

import (
	"context"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/internal/calendar"
	"github.com/agent-protocol/adk-tutorials/internal/friends"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/executor"
	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

const (
	// AgentName is the name of Karley's LlmAgent.
	AgentName = "Karley_Agent"
	// AppName is the runner's app name.
	AppName = "karley agent"
	// UserID owns the sessions of A2A conversations.
	UserID = "karley_agent"

	DefaultHost = "localhost"
	DefaultPort = 10002
)

const instruction = `
**Role:** You are Karley's personal scheduling assistant.
Your sole responsibility is to manage her calendar and respond to inquiries
about her availability for pickleball.

**Core Directives:**

*   **Check Availability:** Use the ` + "`get_availability`" + ` tool to determine
        if Karley is free on a requested date or over a range of dates.
        The tool requires a ` + "`start_date`" + ` and ` + "`end_date`" + `. If the user only provides
        a single date, use that date for both the start and end.
*   **Polite and Concise:** Always be polite and to the point in your responses.
*   **Stick to Your Role:** Do not engage in any conversation outside of scheduling.
        If asked other questions, politely state that you can only help with scheduling.
`

// AvailabilityArgs are the arguments of get_availability.
type AvailabilityArgs struct {
	StartDate string `json:"start_date" description:"The start of the date range to check, in YYYY-MM-DD format."`
	EndDate   string `json:"end_date" description:"The end of the date range to check, in YYYY-MM-DD format."`
}

// AvailabilityTool reports Karley's free slots for every day in a date range.
func AvailabilityTool(cal calendar.Calendar) core.BaseTool {
	subject := calendar.ThirdPerson("Karley")
	return tools.MustFunctionTool("get_availability",
		"Checks Karley's availability for a given date range. Returns a string listing Karley's available times for that date range.",
		func(ctx context.Context, _ *core.ToolContext, args AvailabilityArgs) (string, error) {
			return cal.Availability(args.StartDate, args.EndDate, subject), nil
		})
}

// NewAgent creates Karley's agent on model.
func NewAgent(model core.LLMConnection, modelName string, cal calendar.Calendar, logger *zap.Logger) *agents.LlmAgent {
	cfg := agents.DefaultLlmAgentConfig()
	if modelName != "" {
		cfg.Model = modelName
	}
	agent := agents.NewLlmAgent(AgentName, "Manages Karley's schedule for pickleball games.", cfg)
	agent.SetInstruction(instruction)
	agent.SetLLMConnection(model)
	agent.AddTool(AvailabilityTool(cal))
	if logger != nil {
		agent.SetLogger(logger)
	}
	return agent
}

// NewExecutor wires agent into a runner over svc and returns the A2A executor for
// it. A nil svc keeps sessions in memory.
func NewExecutor(agent *agents.LlmAgent, svc core.SessionService, logger *zap.Logger) *executor.RunnerExecutor {
	if svc == nil {
		svc = sessions.NewInMemorySessionService()
	}
	runner := runners.NewRunner(AppName, agent, svc, logger)
	return executor.NewRunnerExecutor(runner, executor.Config{UserID: UserID, Logger: logger})
}

// Card is the agent card Karley publishes at host:port.
func Card(host string, port int) *a2a.AgentCard {
	return friends.NewCard(
		"Karley Agent",
		"An agent that manages Karley's schedule for pickleball games.",
		friends.URL(host, port),
		a2a.AgentSkill{
			ID:          "check_schedule",
			Name:        "Check Karley's Schedule",
			Description: "Checks Karley's availability for a pickleball game on a given date.",
			Tags:        []string{"schedule", "calendar"},
			Examples:    []string{"Is Karley free to play pickleball tomorrow?"},
		},
	)
}
