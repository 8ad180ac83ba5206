package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/logging"
)

var _ core.LLMConnection = (*OpenAIConnection)(nil)

// OpenAIConfig contains configuration options for OpenAI connections.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// OpenAIConnection implements the LLMConnection interface on the Chat Completions API.
type OpenAIConnection struct {
	client *openai.Client
	model  string
	config *OpenAIConfig
	logger *zap.Logger
}

// toolCallAgg collects streamed tool call fragments.
type toolCallAgg struct{ id, name, args string }

// NewOpenAIConnection creates a new OpenAI connection. An empty API key defers to
// OPENAI_API_KEY in the environment.
func NewOpenAIConnection(cfg *OpenAIConfig, logger *zap.Logger) *OpenAIConnection {
	if cfg == nil {
		cfg = &OpenAIConfig{}
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIConnection{
		client: &client,
		model:  model,
		config: cfg,
		logger: logging.OrNop(logger).With(zap.String("component", "openai"), zap.String("model", model)),
	}
}

// GenerateContent sends a chat completion request and converts the first choice.
func (c *OpenAIConnection) GenerateContent(ctx context.Context, request *core.LLMRequest) (*core.LLMResponse, error) {
	params, err := c.buildParams(request)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	content := &genai.Content{Role: core.RoleModel}
	if choice.Message.Content != "" {
		content.Parts = append(content.Parts, genai.NewPartFromText(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		part, err := functionCallPart(tc.ID, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		content.Parts = append(content.Parts, part)
	}
	return &core.LLMResponse{Content: content, TurnComplete: true, FinishReason: choice.FinishReason}, nil
}

// GenerateContentStream streams text deltas and emits the assembled message, tool
// calls included, once the stream finishes.
func (c *OpenAIConnection) GenerateContentStream(ctx context.Context, request *core.LLMRequest) (<-chan *core.LLMResponse, error) {
	params, err := c.buildParams(request)
	if err != nil {
		return nil, err
	}
	out := make(chan *core.LLMResponse, 10)

	go func() {
		defer close(out)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var text strings.Builder
		calls := map[int64]*toolCallAgg{}
		var finish string
		for stream.Next() {
			chunk := stream.Current()
			for _, ch := range chunk.Choices {
				if ch.Delta.Content != "" {
					text.WriteString(ch.Delta.Content)
					if !send(ctx, out, &core.LLMResponse{
						Content: core.NewTextContent(core.RoleModel, ch.Delta.Content),
						Partial: true,
					}) {
						return
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					agg, ok := calls[tc.Index]
					if !ok {
						agg = &toolCallAgg{}
						calls[tc.Index] = agg
					}
					if tc.ID != "" {
						agg.id = tc.ID
					}
					if tc.Function.Name != "" {
						agg.name = tc.Function.Name
					}
					agg.args += tc.Function.Arguments
				}
				if ch.FinishReason != "" {
					finish = ch.FinishReason
				}
			}
		}
		if err := stream.Err(); err != nil {
			c.logger.Error("stream failed", zap.Error(err))
			send(ctx, out, &core.LLMResponse{
				Content:      core.NewTextContent(core.RoleModel, fmt.Sprintf("Error: %v", err)),
				TurnComplete: true,
				FinishReason: "error",
			})
			return
		}

		final := &genai.Content{Role: core.RoleModel}
		if text.Len() > 0 {
			final.Parts = append(final.Parts, genai.NewPartFromText(text.String()))
		}
		indexes := make([]int64, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
		for _, i := range indexes {
			agg := calls[i]
			part, err := functionCallPart(agg.id, agg.name, agg.args)
			if err != nil {
				c.logger.Warn("dropping malformed tool call", zap.String("tool", agg.name), zap.Error(err))
				continue
			}
			final.Parts = append(final.Parts, part)
		}
		send(ctx, out, &core.LLMResponse{Content: final, TurnComplete: true, FinishReason: finish})
	}()

	return out, nil
}

// Close is a no-op; the client holds no persistent connections of its own.
func (c *OpenAIConnection) Close(ctx context.Context) error {
	return nil
}

func (c *OpenAIConnection) buildParams(request *core.LLMRequest) (openai.ChatCompletionNewParams, error) {
	if request == nil {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("request cannot be nil")
	}
	params := openai.ChatCompletionNewParams{Model: c.model}
	if c.config.Temperature != nil {
		params.Temperature = openai.Float(float64(*c.config.Temperature))
	}
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.config.MaxTokens))
	}

	var system string
	if rc := request.Config; rc != nil {
		if rc.Model != "" {
			params.Model = rc.Model
		}
		if rc.Temperature != nil {
			params.Temperature = openai.Float(float64(*rc.Temperature))
		}
		if rc.MaxTokens != nil {
			params.MaxCompletionTokens = openai.Int(int64(*rc.MaxTokens))
		}
		if rc.TopP != nil {
			params.TopP = openai.Float(float64(*rc.TopP))
		}
		system = rc.SystemInstruction
	}

	params.Messages = chatMessages(system, request.Contents)

	for _, decl := range request.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  openai.FunctionParameters(jsonSchema(decl.Parameters)),
			},
		})
	}
	return params, nil
}

// chatMessages flattens genai contents into chat messages. Function calls become
// assistant tool calls and function responses become tool messages keyed by call ID.
func chatMessages(system string, contents []*genai.Content) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, content := range contents {
		if content == nil {
			continue
		}
		var text []string
		var calls []openai.ChatCompletionMessageToolCallParam
		var results []openai.ChatCompletionMessageParamUnion
		for _, part := range content.Parts {
			switch {
			case part.FunctionCall != nil:
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   part.FunctionCall.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      part.FunctionCall.Name,
						Arguments: responseText(part.FunctionCall.Args),
					},
				})
			case part.FunctionResponse != nil:
				results = append(results, openai.ToolMessage(responseText(part.FunctionResponse.Response), part.FunctionResponse.ID))
			case part.Text != "" && !part.Thought:
				text = append(text, part.Text)
			}
		}

		joined := strings.Join(text, "\n")
		switch roleOf(content.Role) {
		case "system":
			messages = append(messages, openai.SystemMessage(joined))
		case "assistant":
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(joined))
				continue
			}
			msg := &openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls}
			if joined != "" {
				msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(joined)}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: msg})
		default:
			if joined != "" {
				messages = append(messages, openai.UserMessage(joined))
			}
		}
		messages = append(messages, results...)
	}
	return messages
}

func functionCallPart(id, name, rawArgs string) (*genai.Part, error) {
	args, err := parseArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	part := genai.NewPartFromFunctionCall(name, args)
	part.FunctionCall.ID = id
	return part, nil
}
