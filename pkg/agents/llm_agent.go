package agents

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/llm"
	"github.com/agent-protocol/adk-tutorials/pkg/logging"
	"github.com/agent-protocol/adk-tutorials/pkg/ptr"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

// Error codes set on error events.
const (
	ErrorCodeMaxTurns = "MAX_TURNS"
	ErrorCodeToolLoop = "TOOL_LOOP"
	ErrorCodeLLM      = "LLM_ERROR"
)

const defaultMaxTurns = 10

// IncludeContents selects the session history an LlmAgent sends to the model.
type IncludeContents string

const (
	// IncludeContentsDefault sends the whole session history.
	IncludeContentsDefault IncludeContents = ""
	// IncludeContentsNone sends only the user message of the current invocation
	// and the agent's own events since then.
	IncludeContentsNone IncludeContents = "none"
)

// LlmAgentConfig contains configuration options for LLM agents.
type LlmAgentConfig struct {
	Model            string          `json:"model"`
	Temperature      *float32        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float32        `json:"top_p,omitempty"`
	TopK             *int            `json:"top_k,omitempty"`
	ResponseMIMEType string          `json:"response_mime_type,omitempty"`
	MaxToolCalls     int             `json:"max_tool_calls,omitempty"`
	ToolCallTimeout  time.Duration   `json:"tool_call_timeout,omitempty"`
	RetryAttempts    int             `json:"retry_attempts,omitempty"`
	RetryBackoff     time.Duration   `json:"retry_backoff,omitempty"`
	StreamingEnabled bool            `json:"streaming_enabled,omitempty"`
	IncludeContents  IncludeContents `json:"include_contents,omitempty"`
	// OutputKey stores the final response text in session state under this key.
	OutputKey string `json:"output_key,omitempty"`
}

// DefaultLlmAgentConfig returns a default configuration for LLM agents.
func DefaultLlmAgentConfig() *LlmAgentConfig {
	return &LlmAgentConfig{
		Model:           "gemini-2.0-flash",
		MaxToolCalls:    20,
		ToolCallTimeout: 2 * time.Minute,
		RetryAttempts:   3,
		RetryBackoff:    time.Second,
	}
}

// LlmAgent is an agent that reasons with a language model and calls tools.
type LlmAgent struct {
	*BaseAgentImpl
	config              *LlmAgentConfig
	instruction         string
	instructionProvider InstructionProvider
	tools               []core.BaseTool
	toolMap             map[string]core.BaseTool
	llm                 core.LLMConnection
	logger              *zap.Logger
}

// NewLlmAgent creates an LLM agent. A nil config uses DefaultLlmAgentConfig.
func NewLlmAgent(name, description string, config *LlmAgentConfig) *LlmAgent {
	if config == nil {
		config = DefaultLlmAgentConfig()
	}
	a := &LlmAgent{
		BaseAgentImpl: NewBaseAgent(name, description),
		config:        config,
		toolMap:       make(map[string]core.BaseTool),
		logger:        zap.NewNop(),
	}
	a.self = a
	return a
}

// Config returns the agent's configuration.
func (a *LlmAgent) Config() *LlmAgentConfig {
	return a.config
}

// Model returns the LLM model name.
func (a *LlmAgent) Model() string {
	return a.config.Model
}

// Instruction returns the static instruction template.
func (a *LlmAgent) Instruction() string {
	return a.instruction
}

// SetInstruction sets a static instruction. {key} placeholders are filled from session state.
func (a *LlmAgent) SetInstruction(instruction string) {
	a.instruction = instruction
}

// SetInstructionProvider sets a dynamic instruction, taking precedence over SetInstruction.
func (a *LlmAgent) SetInstructionProvider(p InstructionProvider) {
	a.instructionProvider = p
}

// Tools returns the available tools for this agent.
func (a *LlmAgent) Tools() []core.BaseTool {
	return a.tools
}

// AddTool adds a tool to this agent.
func (a *LlmAgent) AddTool(tool core.BaseTool) {
	a.tools = append(a.tools, tool)
	a.toolMap[tool.Name()] = tool
}

// GetTool retrieves a tool by name.
func (a *LlmAgent) GetTool(name string) (core.BaseTool, bool) {
	tool, ok := a.toolMap[name]
	return tool, ok
}

// SetLLMConnection sets the LLM connection for this agent.
func (a *LlmAgent) SetLLMConnection(conn core.LLMConnection) {
	a.llm = conn
}

// SetStreaming switches between whole responses and streamed partial events.
func (a *LlmAgent) SetStreaming(enabled bool) {
	a.config.StreamingEnabled = enabled
}

// SetLogger sets the agent's logger.
func (a *LlmAgent) SetLogger(logger *zap.Logger) {
	a.logger = logging.OrNop(logger).With(zap.String("agent", a.name))
}

// RunAsync runs the model/tool loop until the model answers without calling tools.
//
// The agent works on a private copy of the session; events it emits are persisted by
// whoever consumes the stream, normally a runner.
func (a *LlmAgent) RunAsync(ctx context.Context, invocationCtx *core.InvocationContext) (core.EventStream, error) {
	if a.llm == nil {
		return nil, fmt.Errorf("LLM connection not configured for agent %s", a.name)
	}

	local := localContext(invocationCtx)

	eventChan := make(chan *core.Event, 10)
	go func() {
		defer close(eventChan)

		err := a.runFlow(ctx, local, eventChan)
		if err == nil || ctx.Err() != nil {
			return
		}
		a.logger.Error("conversation flow failed", zap.String("invocation_id", local.InvocationID), zap.Error(err))

		code := ErrorCodeLLM
		switch {
		case errors.Is(err, ErrMaxTurns):
			code = ErrorCodeMaxTurns
		case errors.Is(err, ErrToolLoop), errors.Is(err, ErrTooManyToolCalls):
			code = ErrorCodeToolLoop
		}
		ev := errorEvent(local.InvocationID, a.name, code, err)
		ev.Branch = local.Branch
		_ = publish(ctx, eventChan, ev)
	}()
	return eventChan, nil
}

func (a *LlmAgent) runFlow(ctx context.Context, invocationCtx *core.InvocationContext, eventChan chan<- *core.Event) error {
	maxTurns := defaultMaxTurns
	if rc := invocationCtx.RunConfig; rc != nil && rc.MaxTurns != nil {
		maxTurns = *rc.MaxTurns
	}
	detector := NewLoopDetector(a.config.MaxToolCalls)

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		request := a.buildLLMRequest(invocationCtx)
		a.logger.Debug("calling model",
			zap.Int("turn", turn),
			zap.Int("contents", len(request.Contents)),
			zap.Int("tools", len(request.Tools)))

		response, err := a.generate(ctx, invocationCtx, request, eventChan)
		if err != nil {
			return fmt.Errorf("LLM request failed: %w", err)
		}

		event := core.NewEvent(invocationCtx.InvocationID, a.name)
		event.Branch = invocationCtx.Branch
		event.Content = response.Content
		if event.Content == nil {
			event.Content = &genai.Content{Role: core.RoleModel}
		}
		assignCallIDs(event.Content)

		calls := event.GetFunctionCalls()
		if len(calls) == 0 {
			event.TurnComplete = ptr.Ptr(true)
			if key := a.config.OutputKey; key != "" {
				if text := event.Text(); text != "" {
					event.Actions.StateDelta = map[string]any{key: text}
				}
			}
			return publish(ctx, eventChan, event)
		}
		if err := detector.Observe(calls); err != nil {
			return err
		}

		if err := publish(ctx, eventChan, event); err != nil {
			return err
		}
		invocationCtx.Session.AddEvent(event)

		responseEvent, err := a.executeToolCalls(ctx, invocationCtx, calls, eventChan)
		if err != nil {
			return err
		}
		if err := publish(ctx, eventChan, responseEvent); err != nil {
			return err
		}
		invocationCtx.Session.AddEvent(responseEvent)

		if skip := responseEvent.Actions.SkipSummarization; skip != nil && *skip {
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrMaxTurns, maxTurns)
}

// generate returns the complete model response. With streaming enabled the partial
// chunks are published as partial events on the way.
func (a *LlmAgent) generate(ctx context.Context, invocationCtx *core.InvocationContext, request *core.LLMRequest, eventChan chan<- *core.Event) (*core.LLMResponse, error) {
	if !a.config.StreamingEnabled {
		var response *core.LLMResponse
		err := a.withRetry(ctx, func() error {
			var err error
			response, err = a.llm.GenerateContent(ctx, request)
			return err
		})
		return response, err
	}

	var stream <-chan *core.LLMResponse
	err := a.withRetry(ctx, func() error {
		var err error
		stream, err = a.llm.GenerateContentStream(ctx, request)
		return err
	})
	if err != nil {
		return nil, err
	}

	var final *core.LLMResponse
	for response := range stream {
		if !response.Partial {
			final = response
			continue
		}
		partial := core.NewEvent(invocationCtx.InvocationID, a.name)
		partial.Branch = invocationCtx.Branch
		partial.Content = response.Content
		partial.Partial = ptr.Ptr(true)
		if err := publish(ctx, eventChan, partial); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if final == nil {
		return nil, errors.New("model stream ended without a final response")
	}
	if strings.EqualFold(final.FinishReason, "error") {
		return nil, errors.New(core.ContentText(final.Content))
	}
	return final, nil
}

func (a *LlmAgent) withRetry(ctx context.Context, call func() error) error {
	attempts := max(a.config.RetryAttempts, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !llm.IsRetryable(lastErr) || attempt == attempts-1 {
			break
		}
		wait := time.Duration(attempt+1) * a.config.RetryBackoff
		a.logger.Warn("retrying model call", zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if attempts > 1 && llm.IsRetryable(lastErr) {
		return fmt.Errorf("LLM call failed after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}

func (a *LlmAgent) executeToolCalls(ctx context.Context, invocationCtx *core.InvocationContext, calls []*genai.FunctionCall, eventChan chan<- *core.Event) (*core.Event, error) {
	responseEvent := core.NewEvent(invocationCtx.InvocationID, a.name)
	responseEvent.Branch = invocationCtx.Branch
	responseEvent.Content = &genai.Content{Role: core.RoleUser}

	for _, call := range calls {
		var response map[string]any
		tool, ok := a.toolMap[call.Name]
		if !ok {
			a.logger.Warn("model called unknown tool", zap.String("tool", call.Name))
			response = map[string]any{"error": fmt.Sprintf("Unknown tool: %s", call.Name)}
		} else {
			toolCtx := core.NewToolContext(invocationCtx, call.ID)
			a.logger.Debug("executing tool", zap.String("tool", call.Name), zap.Any("args", call.Args))

			result, err := a.runTool(ctx, tool, call.Args, toolCtx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				a.logger.Warn("tool failed", zap.String("tool", call.Name), zap.Error(err))
				response = tools.ErrorResponse(err)
			} else {
				response = tools.ResponseMap(result)
			}

			if delta := toolCtx.Actions.StateDelta; len(delta) > 0 {
				if responseEvent.Actions.StateDelta == nil {
					responseEvent.Actions.StateDelta = make(map[string]any, len(delta))
				}
				maps.Copy(responseEvent.Actions.StateDelta, delta)
				invocationCtx.Session.UpdateState(delta)
			}
			if skip := toolCtx.Actions.SkipSummarization; skip != nil && *skip {
				responseEvent.Actions.SkipSummarization = skip
			}

			if tool.IsLongRunning() {
				pending := core.NewEvent(invocationCtx.InvocationID, a.name)
				pending.Branch = invocationCtx.Branch
				pending.LongRunningToolIDs = []string{call.ID}
				pending.Partial = ptr.Ptr(true)
				if err := publish(ctx, eventChan, pending); err != nil {
					return nil, err
				}
			}
		}

		part := genai.NewPartFromFunctionResponse(call.Name, response)
		part.FunctionResponse.ID = call.ID
		responseEvent.Content.Parts = append(responseEvent.Content.Parts, part)
	}
	return responseEvent, nil
}

func (a *LlmAgent) runTool(ctx context.Context, tool core.BaseTool, args map[string]any, toolCtx *core.ToolContext) (any, error) {
	if a.config.ToolCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.ToolCallTimeout)
		defer cancel()
	}
	return tool.RunAsync(ctx, args, toolCtx)
}

// buildLLMRequest assembles the conversation so far, the resolved instruction and the
// tool declarations.
func (a *LlmAgent) buildLLMRequest(invocationCtx *core.InvocationContext) *core.LLMRequest {
	var contents []*genai.Content
	for _, event := range invocationCtx.Session.Events {
		if event.Content == nil || len(event.Content.Parts) == 0 || event.IsError() {
			continue
		}
		if event.Partial != nil && *event.Partial {
			continue
		}
		if a.config.IncludeContents == IncludeContentsNone && !a.inCurrentTurn(invocationCtx, event) {
			continue
		}
		contents = append(contents, event.Content)
	}

	var decls []*genai.FunctionDeclaration
	for _, tool := range a.tools {
		if decl := tool.GetDeclaration(); decl != nil {
			decls = append(decls, decl)
		}
	}

	return &core.LLMRequest{
		Contents: contents,
		Config: &core.LLMConfig{
			Model:             a.config.Model,
			Temperature:       a.config.Temperature,
			MaxTokens:         a.config.MaxTokens,
			TopP:              a.config.TopP,
			TopK:              a.config.TopK,
			SystemInstruction: a.resolveInstruction(invocationCtx),
			ResponseMIMEType:  a.config.ResponseMIMEType,
		},
		Tools: decls,
	}
}

// inCurrentTurn reports whether event is the invocation's user message or one of
// this agent's own events in the invocation.
func (a *LlmAgent) inCurrentTurn(invocationCtx *core.InvocationContext, event *core.Event) bool {
	if event.InvocationID != invocationCtx.InvocationID {
		return false
	}
	return event.Author == a.name || (event.Author == core.RoleUser && event.Content == invocationCtx.UserContent)
}

func (a *LlmAgent) resolveInstruction(invocationCtx *core.InvocationContext) string {
	if a.instructionProvider != nil {
		return a.instructionProvider(core.NewReadonlyContext(invocationCtx))
	}
	return InjectState(a.instruction, invocationCtx.Session.State)
}

// assignCallIDs gives every function call an ID so responses can be matched to calls.
func assignCallIDs(content *genai.Content) {
	for _, part := range content.Parts {
		if part != nil && part.FunctionCall != nil && part.FunctionCall.ID == "" {
			part.FunctionCall.ID = "adk-" + uuid.NewString()
		}
	}
}
