package todo

import (
	"context"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

const (
	AgentName    = "todo_agent"
	DefaultModel = "gemini-2.0-flash"
)

const instruction = `You manage todo lists stored in a database.
Use list_users to find users, list_todos to read a user's todos, add_todo to create one
and complete_todo to mark one as done. Always refer to todos by their id when completing them.`

// UsernameArgs select a user.
type UsernameArgs struct {
	Username string `json:"username" description:"The username, e.g. alice."`
}

// AddArgs are the arguments of add_todo.
type AddArgs struct {
	Username string `json:"username" description:"The username that owns the todo."`
	Task     string `json:"task" description:"What needs to be done."`
}

// CompleteArgs are the arguments of complete_todo.
type CompleteArgs struct {
	TodoID uint `json:"todo_id" description:"The id of the todo to mark as completed."`
}

// Tools exposes the store to an LLM.
func (s *Store) Tools() []core.BaseTool {
	return []core.BaseTool{
		tools.MustFunctionTool("list_users", "Lists every user in the database.",
			func(ctx context.Context, _ *core.ToolContext, _ struct{}) (map[string]any, error) {
				users, err := s.ListUsers(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"users": users}, nil
			}),
		tools.MustFunctionTool("list_todos", "Lists the todos of a user.",
			func(ctx context.Context, _ *core.ToolContext, args UsernameArgs) (map[string]any, error) {
				todos, err := s.ListTodos(ctx, args.Username)
				if err != nil {
					return nil, err
				}
				return map[string]any{"username": args.Username, "todos": todos}, nil
			}),
		tools.MustFunctionTool("add_todo", "Adds a todo for a user.",
			func(ctx context.Context, _ *core.ToolContext, args AddArgs) (*Todo, error) {
				return s.AddTodo(ctx, args.Username, args.Task)
			}),
		tools.MustFunctionTool("complete_todo", "Marks a todo as completed.",
			func(ctx context.Context, _ *core.ToolContext, args CompleteArgs) (*Todo, error) {
				return s.CompleteTodo(ctx, args.TodoID)
			}),
	}
}

// NewAgent creates the todo agent over store.
func NewAgent(model core.LLMConnection, modelName string, store *Store, logger *zap.Logger) *agents.LlmAgent {
	cfg := agents.DefaultLlmAgentConfig()
	cfg.Model = DefaultModel
	if modelName != "" {
		cfg.Model = modelName
	}
	agent := agents.NewLlmAgent(AgentName, "Manages users' todo lists.", cfg)
	agent.SetInstruction(instruction)
	agent.SetLLMConnection(model)
	for _, tool := range store.Tools() {
		agent.AddTool(tool)
	}
	if logger != nil {
		agent.SetLogger(logger)
	}
	return agent
}
