package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/logging"
	"github.com/agent-protocol/adk-tutorials/pkg/ptr"
)

var _ core.LLMConnection = (*OllamaConnection)(nil)

// OllamaConfig contains configuration options for Ollama connections.
type OllamaConfig struct {
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	TopK        *int          `json:"top_k,omitempty"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultOllamaConfig returns a default configuration for Ollama.
func DefaultOllamaConfig() *OllamaConfig {
	return &OllamaConfig{
		BaseURL:     "http://localhost:11434",
		Model:       "llama3.2",
		Temperature: ptr.Ptr(float32(0.7)),
		Timeout:     60 * time.Second,
	}
}

// OllamaConnection implements the LLMConnection interface for Ollama's /api/chat.
type OllamaConnection struct {
	baseURL    string
	httpClient *http.Client
	model      string
	config     *OllamaConfig
	logger     *zap.Logger
}

// NewOllamaConnection creates a new Ollama connection with the given configuration.
func NewOllamaConnection(cfg *OllamaConfig, logger *zap.Logger) *OllamaConnection {
	if cfg == nil {
		cfg = DefaultOllamaConfig()
	}
	return &OllamaConnection{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger).With(zap.String("component", "ollama"), zap.String("model", cfg.Model)),
	}
}

// NewOllamaConnectionFromEnv uses OLLAMA_API_BASE and OLLAMA_MODEL when set.
func NewOllamaConnectionFromEnv(logger *zap.Logger) *OllamaConnection {
	cfg := DefaultOllamaConfig()
	if base := os.Getenv("OLLAMA_API_BASE"); base != "" {
		cfg.BaseURL = base
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.Model = model
	}
	return NewOllamaConnection(cfg, logger)
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Index     int            `json:"index,omitempty"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// GenerateContent sends a request to Ollama and returns the response.
func (c *OllamaConnection) GenerateContent(ctx context.Context, request *core.LLMRequest) (*core.LLMResponse, error) {
	body, err := c.convertRequest(request, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert request: %w", err)
	}
	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chat.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", chat.Error)
	}
	return convertResponse(&chat), nil
}

// GenerateContentStream reads Ollama's newline-delimited JSON stream. Text chunks are
// sent as partial responses; the last chunk carries the aggregated content.
func (c *OllamaConnection) GenerateContentStream(ctx context.Context, request *core.LLMRequest) (<-chan *core.LLMResponse, error) {
	body, err := c.convertRequest(request, true)
	if err != nil {
		return nil, fmt.Errorf("failed to convert request: %w", err)
	}
	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	out := make(chan *core.LLMResponse, 10)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		var text strings.Builder
		var calls []ollamaToolCall
		for {
			var chunk ollamaChatResponse
			err := decoder.Decode(&chunk)
			if errors.Is(err, io.EOF) {
				break
			}
			if err == nil && chunk.Error != "" {
				err = errors.New(chunk.Error)
			}
			if err != nil {
				c.logger.Error("stream failed", zap.Error(err))
				send(ctx, out, &core.LLMResponse{
					Content:      core.NewTextContent(core.RoleModel, fmt.Sprintf("Error: %v", err)),
					TurnComplete: true,
					FinishReason: "error",
				})
				return
			}

			text.WriteString(chunk.Message.Content)
			calls = append(calls, chunk.Message.ToolCalls...)
			if chunk.Done {
				final := &ollamaChatResponse{
					Model:      chunk.Model,
					Message:    ollamaMessage{Role: "assistant", Content: text.String(), ToolCalls: calls},
					Done:       true,
					DoneReason: chunk.DoneReason,
				}
				send(ctx, out, convertResponse(final))
				return
			}
			if chunk.Message.Content != "" {
				if !send(ctx, out, &core.LLMResponse{
					Content: core.NewTextContent(core.RoleModel, chunk.Message.Content),
					Partial: true,
				}) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the connection (no-op for HTTP-based connections).
func (c *OllamaConnection) Close(ctx context.Context) error {
	return nil
}

func (c *OllamaConnection) convertRequest(request *core.LLMRequest, stream bool) (*ollamaChatRequest, error) {
	if request == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	chat := &ollamaChatRequest{
		Model:   c.model,
		Stream:  stream,
		Options: make(map[string]any),
	}

	if rc := request.Config; rc != nil {
		if rc.SystemInstruction != "" {
			chat.Messages = append(chat.Messages, ollamaMessage{Role: "system", Content: rc.SystemInstruction})
		}
		if rc.ResponseMIMEType == "application/json" {
			chat.Format = "json"
		}
	}

	for _, content := range request.Contents {
		if content == nil {
			continue
		}
		msg := ollamaMessage{Role: roleOf(content.Role)}
		var text []string
		var results []ollamaMessage
		for _, part := range content.Parts {
			switch {
			case part.FunctionCall != nil:
				var call ollamaToolCall
				call.Function.Name = part.FunctionCall.Name
				call.Function.Arguments = part.FunctionCall.Args
				msg.ToolCalls = append(msg.ToolCalls, call)
			case part.FunctionResponse != nil:
				results = append(results, ollamaMessage{
					Role:     "tool",
					Content:  responseText(part.FunctionResponse.Response),
					ToolName: part.FunctionResponse.Name,
				})
			case part.Text != "" && !part.Thought:
				text = append(text, part.Text)
			}
		}
		msg.Content = strings.Join(text, "\n")
		if msg.Content != "" || len(msg.ToolCalls) > 0 {
			chat.Messages = append(chat.Messages, msg)
		}
		chat.Messages = append(chat.Messages, results...)
	}

	for _, decl := range request.Tools {
		var tool ollamaTool
		tool.Type = "function"
		tool.Function.Name = decl.Name
		tool.Function.Description = decl.Description
		tool.Function.Parameters = jsonSchema(decl.Parameters)
		chat.Tools = append(chat.Tools, tool)
	}

	// Connection settings first, request settings override.
	if c.config.Temperature != nil {
		chat.Options["temperature"] = *c.config.Temperature
	}
	if c.config.MaxTokens != nil {
		chat.Options["num_predict"] = *c.config.MaxTokens
	}
	if c.config.TopP != nil {
		chat.Options["top_p"] = *c.config.TopP
	}
	if c.config.TopK != nil {
		chat.Options["top_k"] = *c.config.TopK
	}
	if rc := request.Config; rc != nil {
		if rc.Model != "" {
			chat.Model = rc.Model
		}
		if rc.Temperature != nil {
			chat.Options["temperature"] = *rc.Temperature
		}
		if rc.MaxTokens != nil {
			chat.Options["num_predict"] = *rc.MaxTokens
		}
		if rc.TopP != nil {
			chat.Options["top_p"] = *rc.TopP
		}
		if rc.TopK != nil {
			chat.Options["top_k"] = *rc.TopK
		}
	}
	return chat, nil
}

func convertResponse(resp *ollamaChatResponse) *core.LLMResponse {
	content := &genai.Content{Role: core.RoleModel}
	if resp.Message.Content != "" {
		content.Parts = append(content.Parts, genai.NewPartFromText(resp.Message.Content))
	}
	for i, call := range resp.Message.ToolCalls {
		part := genai.NewPartFromFunctionCall(call.Function.Name, call.Function.Arguments)
		part.FunctionCall.ID = fmt.Sprintf("call_%d", i)
		content.Parts = append(content.Parts, part)
	}
	return &core.LLMResponse{
		Content:      content,
		Partial:      !resp.Done,
		TurnComplete: resp.Done,
		FinishReason: resp.DoneReason,
	}
}

func (c *OllamaConnection) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
