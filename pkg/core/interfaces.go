package core

import (
	"context"

	"google.golang.org/genai"
)

// EventStream represents a stream of events from agent execution.
type EventStream <-chan *Event

// BaseAgent defines the interface that all agents must implement.
type BaseAgent interface {
	// Name returns the agent's unique identifier.
	Name() string

	// Description returns a description of the agent's purpose.
	Description() string

	// SubAgents returns the list of child agents in the hierarchy.
	SubAgents() []BaseAgent

	// ParentAgent returns the parent agent, if any.
	ParentAgent() BaseAgent

	// SetParentAgent sets the parent agent.
	SetParentAgent(parent BaseAgent)

	// RunAsync executes the agent and returns an event stream.
	// The stream is closed when the agent finishes or ctx is cancelled.
	RunAsync(ctx context.Context, invocationCtx *InvocationContext) (EventStream, error)

	// FindAgent searches for an agent by name in the hierarchy.
	// Returns nil if not found.
	FindAgent(name string) BaseAgent
}

// BaseTool defines the interface that all tools must implement.
type BaseTool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a description of the tool's purpose.
	Description() string

	// IsLongRunning indicates if this is a long-running operation.
	IsLongRunning() bool

	// GetDeclaration returns the function declaration for LLM integration.
	GetDeclaration() *genai.FunctionDeclaration

	// RunAsync executes the tool with the given arguments and context.
	RunAsync(ctx context.Context, args map[string]any, toolCtx *ToolContext) (any, error)
}

// SessionService defines the interface for session management.
type SessionService interface {
	// CreateSession creates a new session.
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error)

	// GetSession retrieves a session by ID. Returns (nil, nil) when it does not exist.
	GetSession(ctx context.Context, req *GetSessionRequest) (*Session, error)

	// AppendEvent adds an event to a session and applies its state delta.
	AppendEvent(ctx context.Context, session *Session, event *Event) error

	// DeleteSession removes a session.
	DeleteSession(ctx context.Context, req *DeleteSessionRequest) error

	// ListSessions returns sessions for a user, most recently updated first.
	ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error)
}

// LLMConnection defines the interface for LLM integrations.
type LLMConnection interface {
	// GenerateContent sends a request to the LLM and returns the response.
	GenerateContent(ctx context.Context, request *LLMRequest) (*LLMResponse, error)

	// GenerateContentStream sends a request and returns a streaming response.
	// The final element has Partial unset.
	GenerateContentStream(ctx context.Context, request *LLMRequest) (<-chan *LLMResponse, error)

	// Close closes the connection.
	Close(ctx context.Context) error
}
