package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// fakeExecutor delegates to the configured functions.
type fakeExecutor struct {
	execute func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error
	cancel  func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error
}

func (f *fakeExecutor) Execute(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
	return f.execute(ctx, reqCtx, queue)
}

func (f *fakeExecutor) Cancel(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
	if f.cancel == nil {
		return NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID).Cancel(ctx, nil)
	}
	return f.cancel(ctx, reqCtx, queue)
}

// echo completes every task with an artifact repeating the input.
func echo(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
	u := NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID)
	if err := u.StartWork(ctx); err != nil {
		return err
	}
	if err := u.AddArtifact(ctx, []a2a.Part{a2a.NewTextPart("echo: " + reqCtx.GetUserInput())}, "echo"); err != nil {
		return err
	}
	return u.Complete(ctx, nil)
}

type fixture struct {
	server *Server
	store  TaskStore
	http   *httptest.Server
	client *a2a.Client
}

func newFixture(t *testing.T, exec AgentExecutor, streaming bool) *fixture {
	t.Helper()
	store := NewInMemoryTaskStore()
	card := &a2a.AgentCard{
		Name:         "echo_agent",
		Description:  "Echoes its input",
		Version:      "1.0.0",
		Capabilities: a2a.AgentCapabilities{Streaming: streaming},
	}
	srv, err := NewServer(Config{Card: card, Executor: exec, TaskStore: store, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	card.URL = ts.URL + "/"

	client, err := a2a.NewClient(card, nil)
	require.NoError(t, err)
	return &fixture{server: srv, store: store, http: ts, client: client}
}

func userMessage(text string) *a2a.MessageSendParams {
	return &a2a.MessageSendParams{Message: *a2a.NewMessage(a2a.RoleUser, "msg-"+text, a2a.NewTextPart(text))}
}

type rpcReply struct {
	ID     any               `json:"id"`
	Result json.RawMessage   `json:"result"`
	Error  *a2a.JSONRPCError `json:"error"`
}

func postRaw(t *testing.T, url, body string) rpcReply {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{Executor: &fakeExecutor{execute: echo}})
	assert.Error(t, err)
	_, err = NewServer(Config{Card: &a2a.AgentCard{Name: "x"}})
	assert.Error(t, err)
}

func TestServer_AgentCardAndHealth(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, true)

	card, err := a2a.NewCardResolver(f.http.URL, nil).GetAgentCard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "echo_agent", card.Name)
	assert.True(t, card.Capabilities.Streaming)

	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_SendMessage(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, false)
	ctx := context.Background()

	ev, err := f.client.SendMessage(ctx, userMessage("hello"))
	require.NoError(t, err)
	task, ok := ev.(*a2a.Task)
	require.True(t, ok, "expected a task, got %T", ev)

	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)
	assert.Equal(t, "echo: hello", a2a.PartsText(task.Artifacts[0].Parts))
	require.Len(t, task.History, 1)
	assert.Equal(t, task.ID, task.History[0].TaskID)
	assert.Equal(t, task.ContextID, task.History[0].ContextID)

	stored, err := f.client.GetTask(ctx, &a2a.TaskQueryParams{ID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, task, stored)

	zero := 0
	trimmed, err := f.client.GetTask(ctx, &a2a.TaskQueryParams{ID: task.ID, HistoryLength: &zero})
	require.NoError(t, err)
	assert.Empty(t, trimmed.History)
}

func TestServer_SendMessageReturnsBareMessage(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		return queue.Enqueue(ctx, a2a.NewMessage(a2a.RoleAgent, "reply", a2a.NewTextPart("pong")))
	}}, false)

	ev, err := f.client.SendMessage(context.Background(), userMessage("ping"))
	require.NoError(t, err)
	msg, ok := ev.(*a2a.Message)
	require.True(t, ok, "expected a message, got %T", ev)
	assert.Equal(t, "pong", msg.Text())
}

func TestServer_ContinueTask(t *testing.T) {
	turns := 0
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		turns++
		u := NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID)
		if reqCtx.CurrentTask == nil {
			return u.RequiresInput(ctx, u.NewAgentMessage(a2a.NewTextPart("which date?")), true)
		}
		return u.Complete(ctx, u.NewAgentMessage(a2a.NewTextPart("booked "+reqCtx.GetUserInput())))
	}}, false)
	ctx := context.Background()

	ev, err := f.client.SendMessage(ctx, userMessage("book"))
	require.NoError(t, err)
	first := ev.(*a2a.Task)
	assert.Equal(t, a2a.TaskStateInputRequired, first.Status.State)

	params := userMessage("friday")
	params.Message.TaskID = first.ID
	ev, err = f.client.SendMessage(ctx, params)
	require.NoError(t, err)
	second := ev.(*a2a.Task)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ContextID, second.ContextID)
	assert.Equal(t, a2a.TaskStateCompleted, second.Status.State)
	assert.Equal(t, "booked friday", second.Status.Message.Text())
	// user, agent question, user
	assert.Len(t, second.History, 3)
	assert.Equal(t, 2, turns)

	// A finished task takes no more messages.
	params = userMessage("again")
	params.Message.TaskID = first.ID
	_, err = f.client.SendMessage(ctx, params)
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInvalidParams, rpcErr.Code)
}

func TestServer_ContextMismatch(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		return NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID).StartWork(ctx)
	}}, false)
	ctx := context.Background()

	ev, err := f.client.SendMessage(ctx, userMessage("start"))
	require.NoError(t, err)
	task := ev.(*a2a.Task)

	params := userMessage("more")
	params.Message.TaskID = task.ID
	params.Message.ContextID = "other-context"
	_, err = f.client.SendMessage(ctx, params)
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInvalidParams, rpcErr.Code)
}

func TestServer_ExecutorError(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		if err := NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID).StartWork(ctx); err != nil {
			return err
		}
		return errors.New("model unavailable")
	}}, false)
	ctx := context.Background()

	params := userMessage("hi")
	params.Message.TaskID = "task-err"
	_, err := f.client.SendMessage(ctx, params)
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInternalError, rpcErr.Code)

	task, err := f.store.Get(ctx, "task-err")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, a2a.TaskStateFailed, task.Status.State)
	assert.Contains(t, task.Status.Message.Text(), "model unavailable")
}

func TestServer_ExecutorRPCErrorPassesThrough(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		return a2a.NewContentTypeNotSupportedError()
	}}, false)

	_, err := f.client.SendMessage(context.Background(), userMessage("hi"))
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeContentTypeNotSupported, rpcErr.Code)
}

func TestServer_ExecutorPanic(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		panic("boom")
	}}, false)

	_, err := f.client.SendMessage(context.Background(), userMessage("hi"))
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInternalError, rpcErr.Code)
}

func TestServer_MalformedRequests(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, false)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `{"jsonrpc":`, a2a.CodeJSONParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"tasks/get"}`, a2a.CodeInvalidRequest},
		{"bad id", `{"jsonrpc":"2.0","id":{"a":1},"method":"tasks/get"}`, a2a.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"tasks/resubscribe","params":{}}`, a2a.CodeMethodNotFound},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"message/send"}`, a2a.CodeInvalidParams},
		{"empty parts", `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","messageId":"m","parts":[],"kind":"message"}}}`, a2a.CodeInvalidParams},
		{"no message id", `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"x"}],"kind":"message"}}}`, a2a.CodeInvalidParams},
		{"bad part", `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","messageId":"m","parts":[{"kind":"file"}],"kind":"message"}}}`, a2a.CodeInvalidParams},
		{"unknown task", `{"jsonrpc":"2.0","id":"x","method":"tasks/get","params":{"id":"missing"}}`, a2a.CodeTaskNotFound},
		{"cancel unknown task", `{"jsonrpc":"2.0","id":"x","method":"tasks/cancel","params":{"id":"missing"}}`, a2a.CodeTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := postRaw(t, f.http.URL, tt.body)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.code, reply.Error.Code)
			assert.Empty(t, reply.Result)
		})
	}
}

func TestServer_StreamMessage(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, true)

	var events []a2a.Event
	err := f.client.SendMessageStream(context.Background(), userMessage("stream me"), func(ev a2a.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 3)

	artifact, ok := events[1].(*a2a.TaskArtifactUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "echo: stream me", a2a.PartsText(artifact.Artifact.Parts))

	last, ok := events[2].(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, last.Final)
	assert.Equal(t, a2a.TaskStateCompleted, last.Status.State)

	stored, err := f.store.Get(context.Background(), last.TaskID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, stored.Status.State)
}

func TestServer_StreamExecutorError(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		return errors.New("broken")
	}}, true)

	err := f.client.SendMessageStream(context.Background(), userMessage("x"), func(a2a.Event) error { return nil })
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeInternalError, rpcErr.Code)
}

func TestServer_StreamingNotSupported(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, false)

	err := f.client.SendMessageStream(context.Background(), userMessage("x"), func(a2a.Event) error { return nil })
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeUnsupportedOperation, rpcErr.Code)
}

func TestServer_CancelTask(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, &fakeExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
		if err := NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID).StartWork(ctx); err != nil {
			return err
		}
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}, false)
	ctx := context.Background()

	params := userMessage("long job")
	params.Message.TaskID = "task-long"
	sendDone := make(chan a2a.Event, 1)
	go func() {
		ev, err := f.client.SendMessage(ctx, params)
		assert.NoError(t, err)
		sendDone <- ev
	}()

	<-started
	require.Eventually(t, func() bool {
		task, err := f.store.Get(ctx, "task-long")
		return err == nil && task != nil && task.Status.State == a2a.TaskStateWorking
	}, 2*time.Second, 10*time.Millisecond)

	canceled, err := f.client.CancelTask(ctx, &a2a.TaskIDParams{ID: "task-long"})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)

	select {
	case ev := <-sendDone:
		task, ok := ev.(*a2a.Task)
		require.True(t, ok)
		assert.Equal(t, a2a.TaskStateCanceled, task.Status.State)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	// Canceling again hits a terminal task.
	_, err = f.client.CancelTask(ctx, &a2a.TaskIDParams{ID: "task-long"})
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeTaskNotCancelable, rpcErr.Code)
}

func TestServer_CancelRejectedByExecutor(t *testing.T) {
	f := newFixture(t, &fakeExecutor{
		execute: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
			return NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID).RequiresInput(ctx, nil, true)
		},
		cancel: func(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error {
			return a2a.NewUnsupportedOperationError()
		},
	}, false)
	ctx := context.Background()

	ev, err := f.client.SendMessage(ctx, userMessage("x"))
	require.NoError(t, err)
	task := ev.(*a2a.Task)

	_, err = f.client.CancelTask(ctx, &a2a.TaskIDParams{ID: task.ID})
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.CodeUnsupportedOperation, rpcErr.Code)

	stored, err := f.store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateInputRequired, stored.Status.State)
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, false)
	_, err := f.client.SendMessage(context.Background(), userMessage("count me"))
	require.NoError(t, err)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `a2a_requests_total{method="message/send",status="ok"} 1`)
	assert.Contains(t, string(body), `a2a_task_transitions_total{state="completed"} 1`)
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t, &fakeExecutor{execute: echo}, false)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
