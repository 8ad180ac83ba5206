// Package core defines the fundamental types and interfaces shared by agents, tools, runners
// and session services.
package core

import (
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Roles used on genai.Content.
const (
	RoleUser  = string(genai.RoleUser)
	RoleModel = string(genai.RoleModel)
)

// EventActions represents side effects and control flow from an event.
type EventActions struct {
	SkipSummarization *bool          `json:"skip_summarization,omitempty"`
	StateDelta        map[string]any `json:"state_delta,omitempty"`
	TransferToAgent   *string        `json:"transfer_to_agent,omitempty"`
	Escalate          *bool          `json:"escalate,omitempty"`
}

// Event represents a single event in the conversation between agents and users.
type Event struct {
	ID                 string         `json:"id"`
	InvocationID       string         `json:"invocation_id"`
	Author             string         `json:"author"` // "user" or agent name
	Content            *genai.Content `json:"content,omitempty"`
	Actions            EventActions   `json:"actions"`
	Branch             *string        `json:"branch,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	LongRunningToolIDs []string       `json:"long_running_tool_ids,omitempty"`
	Partial            *bool          `json:"partial,omitempty"`
	TurnComplete       *bool          `json:"turn_complete,omitempty"`
	ErrorCode          *string        `json:"error_code,omitempty"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	CustomMetadata     map[string]any `json:"custom_metadata,omitempty"`
}

// NewEvent creates a new event with a generated ID and current timestamp.
func NewEvent(invocationID, author string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now(),
	}
}

// NewUserEvent wraps a user message in an event.
func NewUserEvent(invocationID string, content *genai.Content) *Event {
	ev := NewEvent(invocationID, RoleUser)
	ev.Content = content
	return ev
}

// GetFunctionCalls returns all function calls in the event content.
func (e *Event) GetFunctionCalls() []*genai.FunctionCall {
	if e.Content == nil {
		return nil
	}

	var calls []*genai.FunctionCall
	for _, part := range e.Content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns all function responses in the event content.
func (e *Event) GetFunctionResponses() []*genai.FunctionResponse {
	if e.Content == nil {
		return nil
	}

	var responses []*genai.FunctionResponse
	for _, part := range e.Content.Parts {
		if part != nil && part.FunctionResponse != nil {
			responses = append(responses, part.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse determines if this event represents a final response.
func (e *Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization != nil && *e.Actions.SkipSummarization {
		return true
	}
	if len(e.LongRunningToolIDs) > 0 {
		return true
	}
	if len(e.GetFunctionCalls()) > 0 || len(e.GetFunctionResponses()) > 0 {
		return false
	}
	if e.Partial != nil && *e.Partial {
		return false
	}
	return true
}

// Text concatenates the text parts of the event content.
func (e *Event) Text() string {
	return ContentText(e.Content)
}

// IsError reports whether the event carries an error.
func (e *Event) IsError() bool {
	return e.ErrorCode != nil || e.ErrorMessage != nil
}

// ContentText joins the text parts of a content with newlines.
func ContentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var texts []string
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// NewTextContent builds a single-part text content.
func NewTextContent(role, text string) *genai.Content {
	return genai.NewContentFromText(text, genai.Role(role))
}

// State is a concurrency-safe key/value store that tracks pending changes.
type State struct {
	mu    sync.RWMutex
	data  map[string]any
	delta map[string]any
}

// NewState creates a new state seeded with the given values.
func NewState(initial map[string]any) *State {
	s := &State{
		data:  make(map[string]any, len(initial)),
		delta: make(map[string]any),
	}
	maps.Copy(s.data, initial)
	return s
}

// Get retrieves a value from state by key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.delta[key]; ok {
		return v, true
	}
	v, ok := s.data[key]
	return v, ok
}

// Set records a change that becomes visible immediately and is reported by Delta.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delta[key] = value
}

// Delta returns a copy of the pending changes.
func (s *State) Delta() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.delta)
}

// HasDelta checks if there are any pending changes.
func (s *State) HasDelta() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.delta) > 0
}

// ToMap returns the merged view of base values and pending changes.
func (s *State) ToMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := maps.Clone(s.data)
	if result == nil {
		result = make(map[string]any)
	}
	maps.Copy(result, s.delta)
	return result
}
