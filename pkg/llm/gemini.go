package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/logging"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig contains configuration options for Gemini connections.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// GeminiConnection implements the LLMConnection interface on the Gemini API.
type GeminiConnection struct {
	client *genai.Client
	model  string
	config *GeminiConfig
	logger *zap.Logger
}

// NewGeminiConnection creates a Gemini client. With an empty API key the client falls
// back to the Vertex AI settings in the environment.
func NewGeminiConnection(ctx context.Context, cfg *GeminiConfig, logger *zap.Logger) (*GeminiConnection, error) {
	if cfg == nil {
		cfg = &GeminiConfig{}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.APIKey == "" {
		cc.Backend = genai.BackendVertexAI
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiConnection{
		client: client,
		model:  model,
		config: cfg,
		logger: logging.OrNop(logger).With(zap.String("component", "gemini"), zap.String("model", model)),
	}, nil
}

// GenerateContent sends a request to Gemini and returns the first candidate.
func (c *GeminiConnection) GenerateContent(ctx context.Context, request *core.LLMRequest) (*core.LLMResponse, error) {
	model, config := c.buildConfig(request)
	resp, err := c.client.Models.GenerateContent(ctx, model, request.Contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return fromGeminiResponse(resp)
}

// GenerateContentStream streams text deltas as partial responses and finishes with the
// aggregated content, including any function calls.
func (c *GeminiConnection) GenerateContentStream(ctx context.Context, request *core.LLMRequest) (<-chan *core.LLMResponse, error) {
	model, config := c.buildConfig(request)
	out := make(chan *core.LLMResponse, 10)

	go func() {
		defer close(out)

		var text strings.Builder
		var calls []*genai.Part
		var finish string
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, request.Contents, config) {
			if err != nil {
				c.logger.Error("stream failed", zap.Error(err))
				send(ctx, out, &core.LLMResponse{
					Content:      core.NewTextContent(core.RoleModel, fmt.Sprintf("Error: %v", err)),
					TurnComplete: true,
					FinishReason: "ERROR",
				})
				return
			}
			chunk, err := fromGeminiResponse(resp)
			if err != nil {
				continue
			}
			finish = chunk.FinishReason
			for _, p := range chunk.Content.Parts {
				switch {
				case p.FunctionCall != nil:
					calls = append(calls, p)
				case p.Text != "" && !p.Thought:
					text.WriteString(p.Text)
					if !send(ctx, out, &core.LLMResponse{
						Content: core.NewTextContent(core.RoleModel, p.Text),
						Partial: true,
					}) {
						return
					}
				}
			}
		}

		final := &genai.Content{Role: core.RoleModel}
		if text.Len() > 0 {
			final.Parts = append(final.Parts, genai.NewPartFromText(text.String()))
		}
		final.Parts = append(final.Parts, calls...)
		send(ctx, out, &core.LLMResponse{Content: final, TurnComplete: true, FinishReason: finish})
	}()

	return out, nil
}

// Close releases the client. The genai client holds no resources that need closing.
func (c *GeminiConnection) Close(ctx context.Context) error {
	return nil
}

func (c *GeminiConnection) buildConfig(request *core.LLMRequest) (string, *genai.GenerateContentConfig) {
	model := c.model
	config := &genai.GenerateContentConfig{Temperature: c.config.Temperature}
	if c.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.config.MaxTokens)
	}

	if rc := request.Config; rc != nil {
		if rc.Model != "" {
			model = rc.Model
		}
		if rc.Temperature != nil {
			config.Temperature = rc.Temperature
		}
		if rc.MaxTokens != nil {
			config.MaxOutputTokens = int32(*rc.MaxTokens)
		}
		config.TopP = rc.TopP
		if rc.TopK != nil {
			k := float32(*rc.TopK)
			config.TopK = &k
		}
		if rc.SystemInstruction != "" {
			config.SystemInstruction = genai.NewContentFromText(rc.SystemInstruction, genai.RoleUser)
		}
		config.ResponseMIMEType = rc.ResponseMIMEType
	}

	if len(request.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: request.Tools}}
	}
	return model, config
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) (*core.LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	cand := resp.Candidates[0]
	content := cand.Content
	if content == nil {
		content = &genai.Content{}
	}
	content.Role = core.RoleModel
	return &core.LLMResponse{
		Content:      content,
		TurnComplete: true,
		FinishReason: string(cand.FinishReason),
	}, nil
}

func send(ctx context.Context, ch chan<- *core.LLMResponse, resp *core.LLMResponse) bool {
	select {
	case ch <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}
