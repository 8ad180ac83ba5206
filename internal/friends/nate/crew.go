package nate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

// ErrNoOutput is returned when a task ends without a text answer.
var ErrNoOutput = errors.New("crew task produced no output")

// Agent is a crew member described by its role, goal and backstory.
type Agent struct {
	Role      string
	Goal      string
	Backstory string
	Tools     []core.BaseTool
}

// Task is one unit of work assigned to an agent.
type Task struct {
	Description    string
	ExpectedOutput string
	Agent          *Agent
}

// kickoffMessage opens the crew's conversation. The work itself is described in
// each task's instruction.
const kickoffMessage = "Complete your current task."

// Crew runs its tasks in order on one model, as a SequentialAgent of one LlmAgent
// per task. Each task sees only its own work and the previous task's output.
type Crew struct {
	Tasks     []*Task
	Model     core.LLMConnection
	ModelName string
	Logger    *zap.Logger
}

// Kickoff runs every task in order and returns the last task's output.
func (c *Crew) Kickoff(ctx context.Context) (string, error) {
	if len(c.Tasks) == 0 {
		return "", fmt.Errorf("crew has no tasks")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	members := make([]core.BaseAgent, len(c.Tasks))
	roles := make(map[string]int, len(c.Tasks))
	for i, task := range c.Tasks {
		if task.Agent == nil {
			return "", fmt.Errorf("task %d has no agent", i)
		}
		member := c.taskAgent(i, task, logger)
		members[i] = member
		roles[member.Name()] = i
	}
	crew := agents.NewSequentialAgent("crew", "Runs the crew's tasks in order.", members...)

	svc := sessions.NewInMemorySessionService()
	runner := runners.NewRunner("crew", crew, svc, logger)
	session, err := svc.CreateSession(ctx, &core.CreateSessionRequest{AppName: "crew", UserID: "crew"})
	if err != nil {
		return "", err
	}

	logger.Debug("Starting crew", zap.Int("tasks", len(c.Tasks)))
	events, err := runner.Run(ctx, &core.RunRequest{
		UserID:     "crew",
		SessionID:  session.ID,
		NewMessage: core.NewTextContent(core.RoleUser, kickoffMessage),
	})
	if err != nil {
		return "", err
	}

	outputs := make([]string, len(c.Tasks))
	for _, ev := range events {
		i, ok := roles[ev.Author]
		if ev.IsError() {
			if !ok {
				return "", fmt.Errorf("crew failed: %s", deref(ev.ErrorMessage))
			}
			return "", fmt.Errorf("task %d (%s): %s", i, c.Tasks[i].Agent.Role, deref(ev.ErrorMessage))
		}
		if !ok {
			continue
		}
		if out, ok := ev.Actions.StateDelta[outputKey(i)].(string); ok {
			outputs[i] = out
		}
	}
	for i, out := range outputs {
		if out == "" {
			return "", fmt.Errorf("task %d (%s): %w", i, c.Tasks[i].Agent.Role, ErrNoOutput)
		}
	}
	return outputs[len(outputs)-1], nil
}

// taskAgent builds the LlmAgent for the i-th task. Its instruction carries the task
// and, through session state, the output of task i-1.
func (c *Crew) taskAgent(i int, task *Task, logger *zap.Logger) *agents.LlmAgent {
	cfg := agents.DefaultLlmAgentConfig()
	if c.ModelName != "" {
		cfg.Model = c.ModelName
	}
	cfg.IncludeContents = agents.IncludeContentsNone
	cfg.OutputKey = outputKey(i)

	agent := agents.NewLlmAgent(fmt.Sprintf("%s_%d", agentName(task.Agent.Role), i+1), task.Agent.Goal, cfg)
	agent.SetInstructionProvider(func(rc *core.ReadonlyContext) string {
		var previous string
		if i > 0 {
			previous, _ = rc.State[outputKey(i-1)].(string)
		}
		return task.Agent.systemPrompt() + "\n\n" + task.prompt(previous)
	})
	agent.SetLLMConnection(c.Model)
	agent.SetLogger(logger)
	for _, tool := range task.Agent.Tools {
		agent.AddTool(tool)
	}
	return agent
}

func outputKey(i int) string {
	return fmt.Sprintf("crew_task_%d_output", i)
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf("You are %s. %s\nYour personal goal is: %s", a.Role, a.Backstory, a.Goal)
}

func (t *Task) prompt(previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Task: %s\n", t.Description)
	if previous != "" {
		fmt.Fprintf(&b, "\nThis is the context you're working with:\n%s\n", previous)
	}
	fmt.Fprintf(&b, "\nThis is the expected criteria for your final answer: %s\n", t.ExpectedOutput)
	b.WriteString("You MUST return the actual complete content as the final answer, not a summary.")
	return b.String()
}

// agentName turns a role into a valid agent name.
func agentName(role string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, role)
	if name == "" {
		return "crew_agent"
	}
	return name
}

func deref(s *string) string {
	if s == nil {
		return "unknown error"
	}
	return *s
}
