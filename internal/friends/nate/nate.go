// Package nate is Nate's scheduling assistant, organized as a single-agent crew
// that is kicked off once per question.
package nate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/internal/calendar"
	"github.com/agent-protocol/adk-tutorials/internal/friends"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/server"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 10003
)

// AvailabilityArgs are the arguments of calendar_availability_checker.
type AvailabilityArgs struct {
	DateRange string `json:"date_range" description:"The date or date range to check for availability, e.g., '2024-07-28' or '2024-07-28 to 2024-07-30'."`
}

// AvailabilityTool answers in Nate's voice for a date or date range.
func AvailabilityTool(cal calendar.Calendar) core.BaseTool {
	return tools.MustFunctionTool("calendar_availability_checker",
		"Checks my availability for a given date or date range. Use this to find out when I am free.",
		func(ctx context.Context, _ *core.ToolContext, args AvailabilityArgs) (string, error) {
			return cal.AvailabilityForRange(args.DateRange, calendar.FirstPerson()), nil
		})
}

// SchedulingAgent answers availability questions about Nate.
type SchedulingAgent struct {
	assistant *Agent
	model     core.LLMConnection
	modelName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewSchedulingAgent creates Nate's agent with its calendar tool.
func NewSchedulingAgent(model core.LLMConnection, modelName string, cal calendar.Calendar, logger *zap.Logger) *SchedulingAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if modelName == "" {
		modelName = friends.DefaultModel
	}
	return &SchedulingAgent{
		assistant: &Agent{
			Role: "Personal Scheduling Assistant",
			Goal: "Check my calendar and answer questions about my availability.",
			Backstory: "You are a highly efficient and polite assistant. Your only job is " +
				"to manage my calendar. You are an expert at using the " +
				"calendar_availability_checker tool to find out when I am free. You never " +
				"engage in conversations outside of scheduling.",
			Tools: []core.BaseTool{AvailabilityTool(cal)},
		},
		model:     model,
		modelName: modelName,
		logger:    logger.With(zap.String("component", "nate")),
		now:       time.Now,
	}
}

// Invoke kicks off a crew with one task built from query and returns its answer.
func (a *SchedulingAgent) Invoke(ctx context.Context, query string) (string, error) {
	task := &Task{
		Description: fmt.Sprintf("Answer the user's question about my availability. The user asked: '%s'. "+
			"Today's date is %s.", query, a.now().Format(calendar.DateLayout)),
		ExpectedOutput: "A polite and concise answer to the user's question about my availability, " +
			"based on the calendar tool's output.",
		Agent: a.assistant,
	}
	crew := &Crew{
		Tasks:     []*Task{task},
		Model:     a.model,
		ModelName: a.modelName,
		Logger:    a.logger,
	}
	return crew.Kickoff(ctx)
}

// Executor serves the SchedulingAgent over A2A.
type Executor struct {
	agent  *SchedulingAgent
	logger *zap.Logger
}

var _ server.AgentExecutor = (*Executor)(nil)

// NewExecutor creates the A2A executor for agent.
func NewExecutor(agent *SchedulingAgent) *Executor {
	return &Executor{agent: agent, logger: agent.logger}
}

// Execute answers the request's question and completes the task with the answer
// as its artifact.
func (e *Executor) Execute(ctx context.Context, reqCtx *server.RequestContext, queue server.EventQueue) error {
	if err := reqCtx.Validate(); err != nil {
		return a2a.NewInvalidParamsError(err.Error())
	}
	updater := server.NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID)
	if reqCtx.CurrentTask == nil {
		if err := updater.Submit(ctx); err != nil {
			return err
		}
	}
	if err := updater.StartWork(ctx); err != nil {
		return err
	}

	result, err := e.agent.Invoke(ctx, reqCtx.GetUserInput())
	if err != nil {
		e.logger.Error("Error invoking agent", zap.Error(err))
		return a2a.NewInternalError(err.Error())
	}

	if err := updater.AddArtifact(ctx, []a2a.Part{a2a.NewTextPart(result)}, ""); err != nil {
		return err
	}
	return updater.Complete(ctx, nil)
}

// Cancel is not supported.
func (e *Executor) Cancel(ctx context.Context, reqCtx *server.RequestContext, queue server.EventQueue) error {
	return a2a.NewUnsupportedOperationError()
}

// Card is the agent card Nate publishes at host:port.
func Card(host string, port int) *a2a.AgentCard {
	return friends.NewCard(
		"Nate Agent",
		"A friendly agent to help you schedule a pickleball game with Nate.",
		friends.URL(host, port),
		a2a.AgentSkill{
			ID:          "availability_checker",
			Name:        "Availability Checker",
			Description: "Check my calendar to see when I'm available for a pickleball game.",
			Tags:        []string{"schedule", "availability", "calendar"},
			Examples: []string{
				"Are you free tomorrow?",
				"Can you play pickleball next Tuesday at 5pm?",
			},
		},
	)
}
