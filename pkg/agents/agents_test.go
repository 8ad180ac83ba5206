package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/llm/llmtest"
	"github.com/agent-protocol/adk-tutorials/pkg/ptr"
	"github.com/agent-protocol/adk-tutorials/pkg/tools"
)

type timeArgs struct {
	City string `json:"city,omitempty"`
}

func clockTool(calls *int) core.BaseTool {
	return tools.MustFunctionTool("get_current_time", "Get the current time.",
		func(ctx context.Context, toolCtx *core.ToolContext, args timeArgs) (map[string]any, error) {
			*calls++
			toolCtx.SetState("last_city", args.City)
			return map[string]any{"current_time": "2025-07-01 10:00:00"}, nil
		})
}

func newInvocation(agent core.BaseAgent, text string) *core.InvocationContext {
	session := core.NewSession("s1", "app", "user")
	inv := core.NewInvocationContext(agent, session, nil)
	return inv.WithUserContent(core.NewTextContent(core.RoleUser, text))
}

func fastConfig() *LlmAgentConfig {
	cfg := DefaultLlmAgentConfig()
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestBaseAgent_Hierarchy(t *testing.T) {
	child := NewLlmAgent("child", "", nil)
	seq := NewSequentialAgent("root", "runs children", child)

	assert.Equal(t, "root", seq.Name())
	assert.Equal(t, "runs children", seq.Description())
	require.Len(t, seq.SubAgents(), 1)
	assert.Same(t, seq, child.ParentAgent())
	assert.Same(t, seq, seq.FindAgent("root"))
	assert.Same(t, child, seq.FindAgent("child"))
	assert.Same(t, child, seq.FindSubAgent("child"))
	assert.Nil(t, seq.FindAgent("missing"))

	_, err := NewBaseAgent("bare", "").RunAsync(context.Background(), nil)
	assert.Error(t, err)
}

func TestInjectState(t *testing.T) {
	state := map[string]any{"user_name": "Pham Trinh Duc", "count": 3}

	assert.Equal(t, "Hi Pham Trinh Duc (3)", InjectState("Hi {user_name} ({count})", state))
	assert.Equal(t, "Hi !", InjectState("Hi {nickname?}!", state))
	assert.Equal(t, "Hi {nickname}!", InjectState("Hi {nickname}!", state))
	assert.Equal(t, `{"name": "Karley Agent"}`, InjectState(`{"name": "Karley Agent"}`, state))
	assert.Equal(t, "no braces", InjectState("no braces", nil))
}

func TestLlmAgent_TextResponse(t *testing.T) {
	model := llmtest.New(llmtest.Text("Hello there!"))
	agent := NewLlmAgent("greeting_agent", "Greets", nil)
	agent.SetInstruction("You are a friendly agent that greets the user warmly.")
	agent.SetLLMConnection(model)

	events, err := Run(context.Background(), agent, newInvocation(agent, "Hi"))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "greeting_agent", ev.Author)
	assert.Equal(t, "Hello there!", ev.Text())
	assert.True(t, ev.IsFinalResponse())
	assert.True(t, *ev.TurnComplete)

	req := model.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "You are a friendly agent that greets the user warmly.", req.Config.SystemInstruction)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "Hi", core.ContentText(req.Contents[0]))
}

func TestLlmAgent_ToolLoop(t *testing.T) {
	calls := 0
	model := llmtest.New(
		llmtest.Call("get_current_time", map[string]any{"city": "Hanoi"}),
		llmtest.Text("It is 10:00."),
	)
	agent := NewLlmAgent("tool_agent", "", fastConfig())
	agent.AddTool(clockTool(&calls))
	agent.SetLLMConnection(model)

	inv := newInvocation(agent, "What time is it?")
	events, err := Run(context.Background(), agent, inv)
	require.NoError(t, err)
	require.Len(t, events, 3)

	callEv, respEv, final := events[0], events[1], events[2]
	require.Len(t, callEv.GetFunctionCalls(), 1)
	callID := callEv.GetFunctionCalls()[0].ID
	assert.NotEmpty(t, callID)
	assert.False(t, callEv.IsFinalResponse())

	resps := respEv.GetFunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, callID, resps[0].ID)
	assert.Equal(t, "2025-07-01 10:00:00", resps[0].Response["current_time"])
	assert.Equal(t, map[string]any{"last_city": "Hanoi"}, respEv.Actions.StateDelta)

	assert.Equal(t, "It is 10:00.", final.Text())
	assert.Equal(t, 1, calls)

	// The second request carries the call and its response.
	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3)
	require.Len(t, reqs[1].Tools, 1)
	assert.Equal(t, "get_current_time", reqs[1].Tools[0].Name)

	// The caller's session is not mutated by the agent.
	assert.Empty(t, inv.Session.Events)
	assert.Empty(t, inv.Session.State)
}

func TestLlmAgent_ToolErrorsGoBackToModel(t *testing.T) {
	failing := tools.MustFunctionTool("book", "",
		func(ctx context.Context, toolCtx *core.ToolContext, _ struct{}) (string, error) {
			return "", errors.New("court closed")
		})
	model := llmtest.New(
		llmtest.Call("book", nil),
		llmtest.Call("unknown_tool", nil),
		llmtest.Text("Sorry."),
	)
	agent := NewLlmAgent("host", "", fastConfig())
	agent.AddTool(failing)
	agent.SetLLMConnection(model)

	events, err := Run(context.Background(), agent, newInvocation(agent, "Book it"))
	require.NoError(t, err)
	require.Len(t, events, 5)

	assert.Equal(t, map[string]any{"error": "court closed"}, events[1].GetFunctionResponses()[0].Response)
	assert.Equal(t, map[string]any{"error": "Unknown tool: unknown_tool"}, events[3].GetFunctionResponses()[0].Response)
	assert.Equal(t, "Sorry.", events[4].Text())
}

func TestLlmAgent_MaxTurns(t *testing.T) {
	calls := 0
	model := llmtest.New(llmtest.Func(func(req *core.LLMRequest) (*core.LLMResponse, error) {
		// A different argument each turn so loop detection does not trigger first.
		n := len(req.Contents)
		return &core.LLMResponse{Content: &genai.Content{
			Role:  core.RoleModel,
			Parts: []*genai.Part{genai.NewPartFromFunctionCall("get_current_time", map[string]any{"city": string(rune('a' + n))})},
		}}, nil
	}))
	model.Repeat = true

	agent := NewLlmAgent("looper", "", fastConfig())
	agent.AddTool(clockTool(&calls))
	agent.SetLLMConnection(model)

	inv := newInvocation(agent, "loop").WithRunConfig(&core.RunConfig{MaxTurns: ptr.Ptr(2)})
	events, err := Run(context.Background(), agent, inv)
	require.NoError(t, err)

	last := events[len(events)-1]
	require.True(t, last.IsError())
	assert.Equal(t, ErrorCodeMaxTurns, *last.ErrorCode)
	assert.Equal(t, 2, calls)
}

func TestLlmAgent_RepeatedCallIsALoop(t *testing.T) {
	calls := 0
	model := llmtest.New(llmtest.Call("get_current_time", map[string]any{"city": "Hanoi"}))
	model.Repeat = true

	agent := NewLlmAgent("looper", "", fastConfig())
	agent.AddTool(clockTool(&calls))
	agent.SetLLMConnection(model)

	events, err := Run(context.Background(), agent, newInvocation(agent, "loop"))
	require.NoError(t, err)

	last := events[len(events)-1]
	require.True(t, last.IsError())
	assert.Equal(t, ErrorCodeToolLoop, *last.ErrorCode)
	assert.Equal(t, repeatLimit-1, calls)
}

func TestLlmAgent_RetriesTransientErrors(t *testing.T) {
	model := llmtest.New(
		llmtest.Fail(genai.APIError{Code: 503, Status: "UNAVAILABLE"}),
		llmtest.Text("ok"),
	)
	agent := NewLlmAgent("a", "", fastConfig())
	agent.SetLLMConnection(model)

	events, err := Run(context.Background(), agent, newInvocation(agent, "hi"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text())
	assert.Len(t, model.Requests(), 2)
}

func TestLlmAgent_PermanentErrorBecomesErrorEvent(t *testing.T) {
	model := llmtest.New(llmtest.Fail(errors.New("invalid api key")))
	agent := NewLlmAgent("a", "", fastConfig())
	agent.SetLLMConnection(model)

	events, err := Run(context.Background(), agent, newInvocation(agent, "hi"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ErrorCodeLLM, *events[0].ErrorCode)
	assert.Contains(t, *events[0].ErrorMessage, "invalid api key")
	assert.Len(t, model.Requests(), 1)
}

func TestLlmAgent_StatusDigitsInMessageAreNotRetried(t *testing.T) {
	model := llmtest.New(
		llmtest.Fail(errors.New("400 INVALID_ARGUMENT: max_output_tokens must be <= 8192, got 15000")),
		llmtest.Text("unreachable"),
	)
	agent := NewLlmAgent("a", "", fastConfig())
	agent.SetLLMConnection(model)

	events, err := Run(context.Background(), agent, newInvocation(agent, "hi"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Contains(t, *events[0].ErrorMessage, "INVALID_ARGUMENT")
	assert.Len(t, model.Requests(), 1)
}

func TestLlmAgent_Streaming(t *testing.T) {
	agent := NewLlmAgent("a", "", fastConfig())
	agent.SetStreaming(true)
	agent.SetLLMConnection(llmtest.New(llmtest.Text("one two three")))

	events, err := Run(context.Background(), agent, newInvocation(agent, "count"))
	require.NoError(t, err)
	require.Len(t, events, 4)
	for _, ev := range events[:3] {
		assert.True(t, *ev.Partial)
		assert.False(t, ev.IsFinalResponse())
	}
	assert.Equal(t, "one two three", events[3].Text())
	assert.True(t, events[3].IsFinalResponse())
}

func TestLlmAgent_InstructionTemplating(t *testing.T) {
	model := llmtest.New(llmtest.Text("Pho"))
	agent := NewLlmAgent("qa_agent", "", nil)
	agent.SetInstruction("Name: {user_name}\nPreferences: {user_preferences}")
	agent.SetLLMConnection(model)

	inv := newInvocation(agent, "What is my favorite food?")
	inv.Session.State = map[string]any{"user_name": "Duc", "user_preferences": "Pho"}
	_, err := Run(context.Background(), agent, inv)
	require.NoError(t, err)
	assert.Equal(t, "Name: Duc\nPreferences: Pho", model.LastRequest().Config.SystemInstruction)

	agent.SetInstructionProvider(func(rc *core.ReadonlyContext) string {
		return "Agent " + rc.AgentName + " for " + rc.UserID
	})
	model = llmtest.New(llmtest.Text("ok"))
	agent.SetLLMConnection(model)
	_, err = Run(context.Background(), agent, newInvocation(agent, "hi"))
	require.NoError(t, err)
	assert.Equal(t, "Agent qa_agent for user", model.LastRequest().Config.SystemInstruction)
}

func TestLlmAgent_RequiresConnection(t *testing.T) {
	agent := NewLlmAgent("a", "", nil)
	_, err := agent.RunAsync(context.Background(), newInvocation(agent, "hi"))
	assert.Error(t, err)
}

func TestSequentialAgent_PassesHistory(t *testing.T) {
	first := NewLlmAgent("researcher", "", nil)
	firstModel := llmtest.New(llmtest.Text("Friday is free."))
	first.SetLLMConnection(firstModel)

	second := NewLlmAgent("writer", "", nil)
	secondModel := llmtest.New(llmtest.Text("You are free on Friday."))
	second.SetLLMConnection(secondModel)

	seq := NewSequentialAgent("crew", "", first, second)
	events, err := Run(context.Background(), seq, newInvocation(seq, "When am I free?"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "researcher", events[0].Author)
	assert.Equal(t, "writer", events[1].Author)
	assert.Equal(t, "writer", *events[1].Branch)

	contents := secondModel.LastRequest().Contents
	require.Len(t, contents, 2)
	assert.Equal(t, "Friday is free.", core.ContentText(contents[1]))
}

func TestSequentialAgent_OutputKeyAndPrivateTurns(t *testing.T) {
	researcher := NewLlmAgent("researcher", "", &LlmAgentConfig{OutputKey: "findings", IncludeContents: IncludeContentsNone})
	researcher.SetLLMConnection(llmtest.New(llmtest.Text("Friday is free.")))

	writerModel := llmtest.New(llmtest.Text("You are free on Friday."))
	writer := NewLlmAgent("writer", "", &LlmAgentConfig{IncludeContents: IncludeContentsNone})
	writer.SetInstruction("Findings: {findings}")
	writer.SetLLMConnection(writerModel)

	seq := NewSequentialAgent("crew", "", researcher, writer)
	events, err := Run(context.Background(), seq, newInvocation(seq, "When am I free?"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, map[string]any{"findings": "Friday is free."}, events[0].Actions.StateDelta)
	assert.Empty(t, events[1].Actions.StateDelta)

	req := writerModel.LastRequest()
	assert.Equal(t, "Findings: Friday is free.", req.Config.SystemInstruction)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "When am I free?", core.ContentText(req.Contents[0]))
}

func TestSequentialAgent_StopsOnError(t *testing.T) {
	first := NewLlmAgent("first", "", fastConfig())
	first.SetLLMConnection(llmtest.New(llmtest.Fail(errors.New("bad request"))))
	second := NewLlmAgent("second", "", nil)
	secondModel := llmtest.New(llmtest.Text("unreachable"))
	second.SetLLMConnection(secondModel)

	events, err := Run(context.Background(), NewSequentialAgent("seq", "", first, second), newInvocation(first, "go"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Empty(t, secondModel.Requests())
}

func TestLoopDetector_Budget(t *testing.T) {
	ld := NewLoopDetector(2)
	call := func(city string) []*genai.FunctionCall {
		return []*genai.FunctionCall{{Name: "t", Args: map[string]any{"city": city}}}
	}
	require.NoError(t, ld.Observe(call("a")))
	require.NoError(t, ld.Observe(call("b")))
	assert.ErrorIs(t, ld.Observe(call("c")), ErrTooManyToolCalls)
}
