package core

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Session represents a conversation session between users and agents.
type Session struct {
	ID             string         `json:"id"`
	AppName        string         `json:"app_name"`
	UserID         string         `json:"user_id"`
	State          map[string]any `json:"state"`
	Events         []*Event       `json:"events"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}

// NewSession creates a new session with the given parameters.
func NewSession(id, appName, userID string) *Session {
	return &Session{
		ID:             id,
		AppName:        appName,
		UserID:         userID,
		State:          make(map[string]any),
		Events:         make([]*Event, 0),
		LastUpdateTime: time.Now(),
	}
}

// GetState retrieves a value from the session state.
func (s *Session) GetState(key string) (any, bool) {
	if s.State == nil {
		return nil, false
	}
	value, exists := s.State[key]
	return value, exists
}

// UpdateState applies a delta to the session state.
func (s *Session) UpdateState(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	if s.State == nil {
		s.State = make(map[string]any, len(delta))
	}
	maps.Copy(s.State, delta)
	s.LastUpdateTime = time.Now()
}

// AddEvent appends an event to the session history.
func (s *Session) AddEvent(event *Event) {
	s.Events = append(s.Events, event)
	s.LastUpdateTime = time.Now()
}

// GetLastEvent returns the most recent event, or nil.
func (s *Session) GetLastEvent() *Event {
	if len(s.Events) == 0 {
		return nil
	}
	return s.Events[len(s.Events)-1]
}

// Clone returns a copy that shares events but not the containers.
func (s *Session) Clone() *Session {
	clone := *s
	clone.State = maps.Clone(s.State)
	clone.Events = append([]*Event(nil), s.Events...)
	return &clone
}

// Validate checks the identifying fields.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if s.AppName == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if s.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	return nil
}

// InvocationContext represents the context for a single agent invocation.
type InvocationContext struct {
	InvocationID   string
	Agent          BaseAgent
	Session        *Session
	SessionService SessionService
	UserContent    *genai.Content
	Branch         *string
	RunConfig      *RunConfig
	EndInvocation  bool
}

// NewInvocationContext creates a new invocation context with a fresh invocation ID.
func NewInvocationContext(agent BaseAgent, session *Session, sessionService SessionService) *InvocationContext {
	return &InvocationContext{
		InvocationID:   "e-" + uuid.NewString(),
		Agent:          agent,
		Session:        session,
		SessionService: sessionService,
		RunConfig:      &RunConfig{},
	}
}

// WithUserContent sets the user content for this context.
func (ctx *InvocationContext) WithUserContent(content *genai.Content) *InvocationContext {
	ctx.UserContent = content
	return ctx
}

// WithRunConfig sets the run configuration for this context.
func (ctx *InvocationContext) WithRunConfig(config *RunConfig) *InvocationContext {
	if config != nil {
		ctx.RunConfig = config
	}
	return ctx
}

// CreateSubContext derives a context for a sub-agent on its own branch.
func (ctx *InvocationContext) CreateSubContext(subAgent BaseAgent) *InvocationContext {
	sub := *ctx
	sub.Agent = subAgent
	branch := subAgent.Name()
	if ctx.Branch != nil && *ctx.Branch != "" {
		branch = *ctx.Branch + "." + branch
	}
	sub.Branch = &branch
	return &sub
}

// ToolContext provides context for tool execution.
type ToolContext struct {
	InvocationContext *InvocationContext
	State             *State
	Actions           *EventActions
	FunctionCallID    string
}

// NewToolContext creates a tool context whose state view starts from the session state.
func NewToolContext(invocationCtx *InvocationContext, functionCallID string) *ToolContext {
	var base map[string]any
	if invocationCtx != nil && invocationCtx.Session != nil {
		base = invocationCtx.Session.State
	}
	return &ToolContext{
		InvocationContext: invocationCtx,
		State:             NewState(base),
		Actions:           &EventActions{},
		FunctionCallID:    functionCallID,
	}
}

// SetState records a session state change produced by the tool.
func (tc *ToolContext) SetState(key string, value any) {
	tc.State.Set(key, value)
	if tc.Actions.StateDelta == nil {
		tc.Actions.StateDelta = make(map[string]any)
	}
	tc.Actions.StateDelta[key] = value
}

// GetState retrieves a value, preferring changes made during this call.
func (tc *ToolContext) GetState(key string) (any, bool) {
	return tc.State.Get(key)
}

// GetStateString returns a string state value or def when missing or not a string.
func (tc *ToolContext) GetStateString(key, def string) string {
	if v, ok := tc.GetState(key); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// SkipSummarization signals that the tool result is the final answer.
func (tc *ToolContext) SkipSummarization() {
	skip := true
	tc.Actions.SkipSummarization = &skip
}

// ReadonlyContext provides read-only access to context information.
type ReadonlyContext struct {
	InvocationID string
	AgentName    string
	UserID       string
	AppName      string
	State        map[string]any
}

// NewReadonlyContext creates a new readonly context.
func NewReadonlyContext(invocationCtx *InvocationContext) *ReadonlyContext {
	rc := &ReadonlyContext{InvocationID: invocationCtx.InvocationID}
	if invocationCtx.Agent != nil {
		rc.AgentName = invocationCtx.Agent.Name()
	}
	if s := invocationCtx.Session; s != nil {
		rc.UserID = s.UserID
		rc.AppName = s.AppName
		rc.State = maps.Clone(s.State)
	}
	return rc
}

// RunConfig contains configuration options for agent execution.
type RunConfig struct {
	MaxTurns *int          `json:"max_turns,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// LLMRequest represents a request to a language model.
type LLMRequest struct {
	Contents []*genai.Content            `json:"contents"`
	Config   *LLMConfig                  `json:"config,omitempty"`
	Tools    []*genai.FunctionDeclaration `json:"tools,omitempty"`
}

// LLMResponse represents a response from a language model.
type LLMResponse struct {
	Content      *genai.Content `json:"content,omitempty"`
	Partial      bool           `json:"partial,omitempty"`
	TurnComplete bool           `json:"turn_complete,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// LLMConfig contains configuration for LLM requests.
type LLMConfig struct {
	Model             string   `json:"model"`
	Temperature       *float32 `json:"temperature,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
	TopP              *float32 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	SystemInstruction string   `json:"system_instruction,omitempty"`
	// ResponseMIMEType asks the model for a specific output encoding, e.g. application/json.
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

// CreateSessionRequest contains parameters for creating a new session.
type CreateSessionRequest struct {
	AppName   string         `json:"app_name"`
	UserID    string         `json:"user_id"`
	State     map[string]any `json:"state,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// GetSessionRequest contains parameters for retrieving a session.
type GetSessionRequest struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	// MaxEvents limits the returned history to the most recent events; zero means all.
	MaxEvents int `json:"max_events,omitempty"`
}

// DeleteSessionRequest contains parameters for deleting a session.
type DeleteSessionRequest struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// ListSessionsRequest contains parameters for listing sessions.
type ListSessionsRequest struct {
	AppName string `json:"app_name"`
	UserID  string `json:"user_id"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// ListSessionsResponse contains the result of listing sessions.
type ListSessionsResponse struct {
	Sessions   []*Session `json:"sessions"`
	TotalCount int        `json:"total_count"`
	HasMore    bool       `json:"has_more"`
}

// RunRequest contains parameters for running an agent.
type RunRequest struct {
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	NewMessage *genai.Content `json:"new_message"`
	RunConfig  *RunConfig     `json:"run_config,omitempty"`
}
