package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

// echoAgent thinks once, then answers with the query.
type echoAgent struct {
	err error

	mu       sync.Mutex
	sessions []string
}

func (a *echoAgent) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sessions...)
}

func (a *echoAgent) Stream(ctx context.Context, query, sessionID string, yield func(Update) error) error {
	a.mu.Lock()
	a.sessions = append(a.sessions, sessionID)
	a.mu.Unlock()
	if err := yield(Update{Updates: "thinking"}); err != nil {
		return err
	}
	if a.err != nil {
		return a.err
	}
	return yield(Update{IsTaskComplete: true, Content: "echo: " + query})
}

func newTestServer(t *testing.T, agent Streamer, svc core.SessionService) *httptest.Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Agent: agent, Sessions: svc, AppName: "app", UserID: "user"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestNewServer_RequiresAgent(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestPatternRouting(t *testing.T) {
	ts := newTestServer(t, &echoAgent{}, sessions.NewInMemorySessionService())

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"Health Check", http.MethodGet, "/health", http.StatusOK},
		{"Wrong Method Health", http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{"Run Without Body", http.MethodPost, "/run", http.StatusBadRequest},
		{"List Sessions", http.MethodGet, "/sessions", http.StatusOK},
		{"Missing Session", http.MethodGet, "/sessions/nope", http.StatusNotFound},
		{"Unknown Route", http.MethodGet, "/list-apps", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestSessionRoutesDisabled(t *testing.T) {
	ts := newTestServer(t, &echoAgent{}, nil)
	resp, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postRun(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url+"/run", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestRun(t *testing.T) {
	agent := &echoAgent{}
	ts := newTestServer(t, agent, nil)

	resp, body := postRun(t, ts.URL, RunRequest{Message: "hello", SessionID: "s1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got RunResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, RunResponse{IsTaskComplete: true, Content: "echo: hello", SessionID: "s1"}, got)

	// A missing session id gets a fresh one.
	_, body = postRun(t, ts.URL, RunRequest{Message: "again"})
	require.NoError(t, json.Unmarshal(body, &got))
	assert.NotEmpty(t, got.SessionID)
	assert.NotEqual(t, "s1", got.SessionID)

	resp, _ = postRun(t, ts.URL, RunRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRun_AgentError(t *testing.T) {
	ts := newTestServer(t, &echoAgent{err: errors.New("model unavailable")}, nil)
	resp, body := postRun(t, ts.URL, RunRequest{Message: "hello"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"model unavailable"}`, string(body))
}

func TestRunWS(t *testing.T) {
	agent := &echoAgent{}
	ts := newTestServer(t, agent, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/run_ws?session_id=ws1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(RunRequest{Message: "hi"}))

	var first, second Update
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, Update{Updates: "thinking"}, first)
	assert.Equal(t, Update{IsTaskComplete: true, Content: "echo: hi"}, second)

	require.NoError(t, conn.WriteJSON(RunRequest{}))
	var errResp ErrorResponse
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, "message is required", errResp.Error)

	require.NoError(t, conn.WriteJSON(RunRequest{Message: "bye", SessionID: "other"}))
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "echo: bye", second.Content)
	assert.Equal(t, []string{"ws1", "other"}, agent.seen())
}

func TestSessionRoutes(t *testing.T) {
	ctx := context.Background()
	svc := sessions.NewInMemorySessionService()
	_, err := svc.CreateSession(ctx, &core.CreateSessionRequest{AppName: "app", UserID: "user", SessionID: "s1"})
	require.NoError(t, err)
	ts := newTestServer(t, &echoAgent{}, svc)

	resp, err := http.Get(ts.URL + "/sessions/s1")
	require.NoError(t, err)
	var session core.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	resp.Body.Close()
	assert.Equal(t, "s1", session.ID)

	resp, err = http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	var list core.ListSessionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Sessions, 1)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/s1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := svc.GetSession(ctx, &core.GetSessionRequest{AppName: "app", UserID: "user", SessionID: "s1"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &echoAgent{}, nil)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/run", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
