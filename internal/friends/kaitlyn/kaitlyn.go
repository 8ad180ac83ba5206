// Package kaitlyn is Kaitlyn's scheduling assistant: a reason-and-act loop whose
// conversation state is checkpointed per A2A context and whose final answer is a
// structured status report.
package kaitlyn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/internal/calendar"
	"github.com/agent-protocol/adk-tutorials/internal/friends"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

const (
	AgentName = "kaitlyn_agent"
	// threadUser owns the checkpointed threads.
	threadUser = "kaitlyn"

	DefaultHost = "localhost"
	DefaultPort = 10004
)

// Progress messages streamed while the agent works.
const (
	CheckingMessage   = "Checking Kaitlyn's availability..."
	ProcessingMessage = "Processing availability..."
	FallbackMessage   = "We are unable to process your request at the moment. Please try again."
)

const systemInstruction = "You are Kaitlyn's scheduling assistant. " +
	"Your sole purpose is to use the 'get_availability' tool to answer questions about Kaitlyn's schedule for playing pickleball. " +
	"You will be provided with the current date to help you understand relative date queries like 'tomorrow' or 'next week'. " +
	"Use this information to correctly call the tool with a specific date (e.g., 'YYYY-MM-DD'). " +
	"If the user asks about anything other than scheduling pickleball, " +
	"politely state that you cannot help with that topic and can only assist with scheduling queries. " +
	"Do not attempt to answer unrelated questions or use tools for other purposes. " +
	"Set response status to input_required if the user needs to provide more information. " +
	"Set response status to error if there is an error while processing the request. " +
	"Set response status to completed if the request is complete.\n\n" +
	`Your final answer must be a single JSON object of the form {"status": "input_required" | "completed" | "error", "message": "<your reply to the user>"} and nothing else.`

// Status is the status field of a ResponseFormat.
type Status string

const (
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

// ResponseFormat is the structured final answer the model is asked for.
type ResponseFormat struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Response is one item of the agent's stream.
type Response struct {
	IsTaskComplete   bool
	RequireUserInput bool
	Content          string
}

// AvailabilityArgs are the arguments of get_availability.
type AvailabilityArgs struct {
	DateRange string `json:"date_range" description:"The date or date range to check for availability, e.g., '2024-07-28' or '2024-07-28 to 2024-07-30'."`
}

// AvailabilityTool answers in Kaitlyn's voice for a date or date range.
func AvailabilityTool(cal calendar.Calendar) core.BaseTool {
	return tools.MustFunctionTool("get_availability",
		"Checks my availability for a given date range.",
		func(ctx context.Context, _ *core.ToolContext, args AvailabilityArgs) (string, error) {
			return cal.AvailabilityForRange(args.DateRange, calendar.FirstPerson()), nil
		})
}

// Agent is Kaitlyn's agent. Each context id is a thread whose history lives in the
// checkpointer.
type Agent struct {
	runner *runners.Runner
	logger *zap.Logger
	now    func() time.Time
}

// NewAgent creates Kaitlyn's agent. A nil checkpointer keeps threads in memory.
func NewAgent(model core.LLMConnection, modelName string, cal calendar.Calendar, checkpointer core.SessionService, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkpointer == nil {
		checkpointer = sessions.NewInMemorySessionService()
	}
	cfg := agents.DefaultLlmAgentConfig()
	cfg.Model = friends.DefaultModel
	if modelName != "" {
		cfg.Model = modelName
	}

	react := agents.NewLlmAgent(AgentName, "Helps with scheduling pickleball games", cfg)
	react.SetInstruction(systemInstruction)
	react.SetLLMConnection(model)
	react.SetLogger(logger)
	react.AddTool(AvailabilityTool(cal))

	return &Agent{
		runner: runners.NewRunner(AgentName, react, checkpointer, logger),
		logger: logger.With(zap.String("component", "kaitlyn")),
		now:    time.Now,
	}
}

// Stream runs query on the contextID thread, calling yield with a progress item
// for every tool call and tool result, then with the final answer.
func (a *Agent) Stream(ctx context.Context, query, contextID string, yield func(Response) error) error {
	session, err := sessions.GetOrCreateSession(ctx, a.runner.SessionService(), a.runner.AppName(), threadUser, contextID, nil)
	if err != nil {
		return fmt.Errorf("failed to load thread %s: %w", contextID, err)
	}

	augmented := fmt.Sprintf("Today's date is %s.\n\nUser query: %s", a.now().Format(calendar.DateLayout), query)
	stream, err := a.runner.RunAsync(ctx, &core.RunRequest{
		UserID:     threadUser,
		SessionID:  session.ID,
		NewMessage: core.NewTextContent(core.RoleUser, augmented),
	})
	if err != nil {
		return err
	}
	defer func() {
		go func() {
			for range stream {
			}
		}()
	}()

	var final string
	for ev := range stream {
		switch {
		case ev.IsError():
			return fmt.Errorf("agent failed: %s", errorText(ev))
		case len(ev.GetFunctionCalls()) > 0:
			if err := yield(Response{Content: CheckingMessage}); err != nil {
				return err
			}
		case len(ev.GetFunctionResponses()) > 0:
			if err := yield(Response{Content: ProcessingMessage}); err != nil {
				return err
			}
		case ev.IsFinalResponse():
			final = ev.Text()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return yield(agentResponse(final, a.logger))
}

// Invoke runs query and returns only the final answer.
func (a *Agent) Invoke(ctx context.Context, query, contextID string) (Response, error) {
	var last Response
	err := a.Stream(ctx, query, contextID, func(r Response) error {
		last = r
		return nil
	})
	return last, err
}

// agentResponse maps the model's structured answer onto a stream item.
func agentResponse(text string, logger *zap.Logger) Response {
	format, ok := ParseResponseFormat(text)
	if !ok {
		logger.Warn("Final answer is not a structured response", zap.String("text", text))
		return Response{RequireUserInput: true, Content: FallbackMessage}
	}
	switch format.Status {
	case StatusCompleted:
		return Response{IsTaskComplete: true, Content: format.Message}
	default:
		return Response{RequireUserInput: true, Content: format.Message}
	}
}

// ParseResponseFormat extracts the JSON object from a final answer, tolerating
// markdown fences and surrounding prose.
func ParseResponseFormat(text string) (ResponseFormat, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ResponseFormat{}, false
	}
	var format ResponseFormat
	if err := json.Unmarshal([]byte(text[start:end+1]), &format); err != nil {
		return ResponseFormat{}, false
	}
	switch format.Status {
	case StatusInputRequired, StatusCompleted, StatusError:
	default:
		return ResponseFormat{}, false
	}
	if format.Message == "" {
		return ResponseFormat{}, false
	}
	return format, true
}

func errorText(ev *core.Event) string {
	if ev.ErrorMessage != nil {
		return *ev.ErrorMessage
	}
	if ev.ErrorCode != nil {
		return *ev.ErrorCode
	}
	return "unknown error"
}

// Card is the agent card Kaitlyn publishes at host:port.
func Card(host string, port int) *a2a.AgentCard {
	return friends.NewCard(
		"Kaitlyn Agent",
		"Helps with scheduling pickleball games",
		friends.URL(host, port),
		a2a.AgentSkill{
			ID:          "schedule_pickleball",
			Name:        "Pickleball Scheduling Tool",
			Description: "Helps with finding Kaitlyn's availability for pickleball",
			Tags:        []string{"scheduling", "pickleball"},
			Examples:    []string{"Are you free to play pickleball on Saturday?"},
		},
	)
}
