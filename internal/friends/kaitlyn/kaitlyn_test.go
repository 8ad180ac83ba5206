package kaitlyn

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/adk-tutorials/internal/calendar"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/server"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/llm/llmtest"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

var today = time.Date(2025, 7, 28, 9, 0, 0, 0, time.UTC)

func newAgent(model core.LLMConnection, checkpointer core.SessionService) *Agent {
	cal := calendar.Generate(today, rand.New(rand.NewPCG(5, 6)))
	agent := NewAgent(model, "", cal, checkpointer, nil)
	agent.now = func() time.Time { return today }
	return agent
}

func TestParseResponseFormat(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ResponseFormat
		ok   bool
	}{
		{"plain", `{"status":"completed","message":"Free at 10:00."}`, ResponseFormat{StatusCompleted, "Free at 10:00."}, true},
		{"fenced", "```json\n{\"status\": \"input_required\", \"message\": \"Which day?\"}\n```", ResponseFormat{StatusInputRequired, "Which day?"}, true},
		{"error status", `{"status":"error","message":"Calendar down."}`, ResponseFormat{StatusError, "Calendar down."}, true},
		{"unknown status", `{"status":"maybe","message":"x"}`, ResponseFormat{}, false},
		{"empty message", `{"status":"completed","message":""}`, ResponseFormat{}, false},
		{"prose", "I am free at 10:00.", ResponseFormat{}, false},
		{"broken json", `{"status":"completed",`, ResponseFormat{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseResponseFormat(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAgent_Stream(t *testing.T) {
	model := llmtest.New(
		llmtest.Call("get_availability", map[string]any{"date_range": "2025-07-29"}),
		llmtest.Text(`{"status":"completed","message":"I am free on 2025-07-29 at 10:00."}`),
	)
	agent := newAgent(model, nil)

	var items []Response
	err := agent.Stream(context.Background(), "Are you free tomorrow?", "thread-1", func(r Response) error {
		items = append(items, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Response{
		{Content: CheckingMessage},
		{Content: ProcessingMessage},
		{IsTaskComplete: true, Content: "I am free on 2025-07-29 at 10:00."},
	}, items)

	first := model.Requests()[0]
	assert.Equal(t, "Today's date is 2025-07-28.\n\nUser query: Are you free tomorrow?", core.ContentText(first.Contents[0]))
	assert.Contains(t, first.Config.SystemInstruction, "Kaitlyn's scheduling assistant")
}

func TestAgent_ThreadsAreCheckpointed(t *testing.T) {
	model := llmtest.New(
		llmtest.Text(`{"status":"input_required","message":"Which day?"}`),
		llmtest.Text(`{"status":"completed","message":"Saturday works."}`),
		llmtest.Text(`{"status":"input_required","message":"Which day?"}`),
	)
	checkpointer := sessions.NewInMemorySessionService()
	agent := newAgent(model, checkpointer)
	ctx := context.Background()

	first, err := agent.Invoke(ctx, "Can you play?", "thread-1")
	require.NoError(t, err)
	assert.Equal(t, Response{RequireUserInput: true, Content: "Which day?"}, first)

	second, err := agent.Invoke(ctx, "Saturday", "thread-1")
	require.NoError(t, err)
	assert.True(t, second.IsTaskComplete)
	assert.Len(t, model.Requests()[1].Contents, 3)

	_, err = agent.Invoke(ctx, "Can you play?", "thread-2")
	require.NoError(t, err)
	assert.Len(t, model.Requests()[2].Contents, 1)

	thread, err := checkpointer.GetSession(ctx, &core.GetSessionRequest{AppName: AgentName, UserID: threadUser, SessionID: "thread-1"})
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Len(t, thread.Events, 4)
}

func TestAgent_UnstructuredAnswer(t *testing.T) {
	agent := newAgent(llmtest.New(llmtest.Text("Sure, any time!")), nil)
	got, err := agent.Invoke(context.Background(), "Free?", "t")
	require.NoError(t, err)
	assert.Equal(t, Response{RequireUserInput: true, Content: FallbackMessage}, got)
}

func execute(t *testing.T, exec *Executor) ([]a2a.Event, error) {
	t.Helper()
	queue := server.NewEventQueue(32)
	err := exec.Execute(context.Background(), &server.RequestContext{
		TaskID:    "t1",
		ContextID: "c1",
		Message:   a2a.NewMessage(a2a.RoleUser, "m1", a2a.NewTextPart("Are you free on Saturday?")),
	}, queue)
	queue.Close()
	var events []a2a.Event
	for ev := range queue.Events() {
		events = append(events, ev)
	}
	return events, err
}

func TestExecutor_Completes(t *testing.T) {
	model := llmtest.New(
		llmtest.Call("get_availability", map[string]any{"date_range": "2025-08-02"}),
		llmtest.Text(`{"status":"completed","message":"Saturday at 09:00 works."}`),
	)
	events, err := execute(t, NewExecutor(newAgent(model, nil)))
	require.NoError(t, err)

	var states []a2a.TaskState
	var artifact *a2a.TaskArtifactUpdateEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case *a2a.TaskStatusUpdateEvent:
			states = append(states, e.Status.State)
		case *a2a.TaskArtifactUpdateEvent:
			artifact = e
		}
	}
	assert.Equal(t, []a2a.TaskState{
		a2a.TaskStateSubmitted, a2a.TaskStateWorking, a2a.TaskStateWorking, a2a.TaskStateWorking, a2a.TaskStateCompleted,
	}, states)
	require.NotNil(t, artifact)
	assert.Equal(t, ArtifactName, artifact.Artifact.Name)
	assert.Equal(t, "Saturday at 09:00 works.", a2a.PartsText(artifact.Artifact.Parts))
}

func TestExecutor_InputRequired(t *testing.T) {
	model := llmtest.New(llmtest.Text(`{"status":"input_required","message":"Which Saturday?"}`))
	events, err := execute(t, NewExecutor(newAgent(model, nil)))
	require.NoError(t, err)

	last, ok := events[len(events)-1].(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateInputRequired, last.Status.State)
	assert.True(t, last.Final)
	assert.Equal(t, "Which Saturday?", last.Status.Message.Text())
}

func TestExecutor_Failure(t *testing.T) {
	events, err := execute(t, NewExecutor(newAgent(llmtest.New(llmtest.Fail(errors.New("bad request"))), nil)))
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInternalError, rpcErr.Code)
	assert.Len(t, events, 2)
}

func TestCard(t *testing.T) {
	card := Card(DefaultHost, DefaultPort)
	assert.Equal(t, "Kaitlyn Agent", card.Name)
	assert.Equal(t, "http://localhost:10004", card.URL)
	assert.Equal(t, "schedule_pickleball", card.Skills[0].ID)
	assert.Equal(t, []string{"text/plain"}, card.DefaultOutputModes)
}
