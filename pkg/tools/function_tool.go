package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

// Func is the signature of a typed tool handler. A is a struct whose exported fields
// are the tool's parameters.
type Func[A, R any] func(ctx context.Context, toolCtx *core.ToolContext, args A) (R, error)

// FunctionTool wraps a typed Go function as a tool. The parameter schema is derived
// from A's json and description tags.
type FunctionTool[A, R any] struct {
	*BaseToolImpl
	fn     Func[A, R]
	schema *genai.Schema
}

// NewFunctionTool creates a tool from fn. It fails when A cannot be described as an
// object schema.
func NewFunctionTool[A, R any](name, description string, fn Func[A, R]) (*FunctionTool[A, R], error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: function cannot be nil", name)
	}
	schema, err := SchemaFor[A]()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return &FunctionTool[A, R]{
		BaseToolImpl: NewBaseTool(name, description),
		fn:           fn,
		schema:       schema,
	}, nil
}

// MustFunctionTool is NewFunctionTool for package-level tool definitions.
func MustFunctionTool[A, R any](name, description string, fn Func[A, R]) *FunctionTool[A, R] {
	t, err := NewFunctionTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// GetDeclaration returns the function declaration for LLM integration.
func (t *FunctionTool[A, R]) GetDeclaration() *genai.FunctionDeclaration {
	decl := &genai.FunctionDeclaration{
		Name:        t.name,
		Description: t.description,
	}
	if len(t.schema.Properties) > 0 {
		decl.Parameters = t.schema
	}
	return decl
}

// RunAsync decodes args into A and calls the wrapped function.
func (t *FunctionTool[A, R]) RunAsync(ctx context.Context, args map[string]any, toolCtx *core.ToolContext) (any, error) {
	var input A
	if err := decodeArgs(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}
	if err := checkRequired(t.schema, args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}
	return t.fn(ctx, toolCtx, input)
}

func decodeArgs(args map[string]any, out any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func checkRequired(schema *genai.Schema, args map[string]any) error {
	for _, name := range schema.Required {
		v, ok := args[name]
		if !ok || v == nil {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	return nil
}
