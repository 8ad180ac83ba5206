// Package llm provides LLM connection implementations for various providers.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/config"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

// New builds the connection for cfg.Provider.
func New(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (core.LLMConnection, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiConnection(ctx, &GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Name,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
	case config.ProviderOpenAI:
		return NewOpenAIConnection(&OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Name,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger), nil
	case config.ProviderOllama:
		oc := DefaultOllamaConfig()
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Name != "" {
			oc.Model = cfg.Name
		}
		if cfg.Temperature != nil {
			oc.Temperature = cfg.Temperature
		}
		return NewOllamaConnection(oc, logger), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// jsonSchema renders a genai schema as a JSON Schema object, the format the OpenAI
// and Ollama tool APIs expect.
func jsonSchema(s *genai.Schema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	out := map[string]any{"type": strings.ToLower(string(s.Type))}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Items != nil {
		out["items"] = jsonSchema(s.Items)
	}
	if s.Type == genai.TypeObject {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = jsonSchema(p)
		}
		out["properties"] = props
		if len(s.Required) > 0 {
			out["required"] = s.Required
		}
	}
	return out
}

// responseText renders a function response payload as the JSON text sent back to
// providers that carry tool results as plain strings.
func responseText(resp map[string]any) string {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("%v", resp)
	}
	return string(data)
}

// parseArgs decodes tool call arguments sent as a JSON string.
func parseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments %q: %w", raw, err)
	}
	return args, nil
}

// roleOf maps genai roles onto chat-completion roles.
func roleOf(role string) string {
	switch role {
	case core.RoleModel, "assistant", "agent":
		return "assistant"
	case "system":
		return "system"
	default:
		return "user"
	}
}
