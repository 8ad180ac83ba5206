package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

type bookArgs struct {
	Date     string   `json:"date" description:"Date in YYYY-MM-DD format."`
	Start    string   `json:"start_time" description:"Start time, HH:MM."`
	Players  int      `json:"players,omitempty"`
	Level    string   `json:"level,omitempty" enum:"beginner, advanced"`
	Names    []string `json:"names,omitempty"`
	internal string
}

type bookResult struct {
	Status string `json:"status"`
	ID     string `json:"booking_id"`
}

func TestSchemaFor(t *testing.T) {
	schema, err := SchemaFor[bookArgs]()
	require.NoError(t, err)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.ElementsMatch(t, []string{"date", "start_time"}, schema.Required)
	require.Contains(t, schema.Properties, "date")
	assert.Equal(t, genai.TypeString, schema.Properties["date"].Type)
	assert.Equal(t, "Date in YYYY-MM-DD format.", schema.Properties["date"].Description)
	assert.Equal(t, genai.TypeInteger, schema.Properties["players"].Type)
	assert.Equal(t, []string{"beginner", "advanced"}, schema.Properties["level"].Enum)
	assert.Equal(t, genai.TypeArray, schema.Properties["names"].Type)
	assert.Equal(t, genai.TypeString, schema.Properties["names"].Items.Type)
	assert.NotContains(t, schema.Properties, "internal")

	_, err = SchemaFor[string]()
	assert.Error(t, err)
}

func TestFunctionTool_RunAsync(t *testing.T) {
	var seen bookArgs
	tool, err := NewFunctionTool("book", "Books a court.",
		func(ctx context.Context, toolCtx *core.ToolContext, args bookArgs) (bookResult, error) {
			seen = args
			toolCtx.SetState("last_booking", args.Date)
			return bookResult{Status: "success", ID: "b-1"}, nil
		})
	require.NoError(t, err)

	decl := tool.GetDeclaration()
	assert.Equal(t, "book", decl.Name)
	assert.Equal(t, "Books a court.", decl.Description)
	require.NotNil(t, decl.Parameters)

	toolCtx := core.NewToolContext(core.NewInvocationContext(nil, core.NewSession("s", "a", "u"), nil), "call-1")
	out, err := tool.RunAsync(context.Background(), map[string]any{
		"date":       "2025-07-01",
		"start_time": "10:00",
		"players":    float64(4),
	}, toolCtx)
	require.NoError(t, err)

	assert.Equal(t, bookArgs{Date: "2025-07-01", Start: "10:00", Players: 4}, seen)
	assert.Equal(t, map[string]any{"status": "success", "booking_id": "b-1"}, ResponseMap(out))
	assert.Equal(t, map[string]any{"last_booking": "2025-07-01"}, toolCtx.Actions.StateDelta)
}

func TestFunctionTool_Errors(t *testing.T) {
	tool := MustFunctionTool("book", "",
		func(ctx context.Context, toolCtx *core.ToolContext, args bookArgs) (string, error) {
			return "", errors.New("court closed")
		})

	_, err := tool.RunAsync(context.Background(), map[string]any{"date": "2025-07-01"}, nil)
	assert.ErrorContains(t, err, `missing required parameter "start_time"`)

	_, err = tool.RunAsync(context.Background(), map[string]any{"date": 12, "start_time": "x"}, nil)
	assert.Error(t, err)

	_, err = tool.RunAsync(context.Background(), map[string]any{"date": "d", "start_time": "s"}, nil)
	assert.EqualError(t, err, "court closed")

	_, err = NewFunctionTool[bookArgs, string]("", "", nil)
	assert.Error(t, err)
}

func TestFunctionTool_NoParameters(t *testing.T) {
	tool := MustFunctionTool("get_current_time", "Get the current time.",
		func(ctx context.Context, toolCtx *core.ToolContext, _ struct{}) (map[string]any, error) {
			return map[string]any{"current_time": "2025-01-01 00:00:00"}, nil
		})

	assert.Nil(t, tool.GetDeclaration().Parameters)
	out, err := tool.RunAsync(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01 00:00:00", ResponseMap(out)["current_time"])
}

func TestResponseMap(t *testing.T) {
	assert.Equal(t, map[string]any{"result": "text"}, ResponseMap("text"))
	assert.Equal(t, map[string]any{"result": 3}, ResponseMap(3))
	assert.Equal(t, map[string]any{"result": nil}, ResponseMap(nil))
	assert.Equal(t, map[string]any{"result": []string{"a"}}, ResponseMap([]string{"a"}))
	assert.Equal(t, map[string]any{"status": "ok", "booking_id": ""}, ResponseMap(&bookResult{Status: "ok"}))
	assert.Equal(t, map[string]any{"error": "boom"}, ErrorResponse(errors.New("boom")))
}
