package tutorials

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

const (
	QAAgentName = "qa_agent"
	// QAUserID owns the demo session.
	QAUserID = "pham_trinh_duc"
	// QAQuestion is what the demo asks.
	QAQuestion = "What is my favorite food?"
)

const qaInstruction = `
You are a helpful assistant that answers questions about the user's preferences.

Here is some information about the user:
Name:
{user_name}
Preferences:
{user_preferences}
`

// InitialState seeds the demo session.
func InitialState() map[string]any {
	return map[string]any{
		"user_name": "Pham Trinh Duc",
		"user_preferences": `
        I like to play Pickleball, Disc Golf, and Tennis.
        My favorite food is Mexican.
        My favorite TV show is Game of Thrones.
        Loves it when people like and subscribe to his YouTube channel.
    `,
	}
}

// NewQAAgent creates an agent whose instruction is filled from session state.
func NewQAAgent(model core.LLMConnection, modelName string, logger *zap.Logger) *agents.LlmAgent {
	return newAgent(QAAgentName, "Question answering agent", qaInstruction, model, modelName, ToolModel, logger)
}

// StatefulResult is what RunStateful reports.
type StatefulResult struct {
	SessionID string
	Response  string
	State     map[string]any
}

// RunStateful creates a session holding InitialState, asks question and reads
// the session back.
func RunStateful(ctx context.Context, agent core.BaseAgent, svc core.SessionService, question string, logger *zap.Logger) (*StatefulResult, error) {
	if svc == nil {
		svc = sessions.NewInMemorySessionService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	session, err := svc.CreateSession(ctx, &core.CreateSessionRequest{
		AppName:   QAAgentName,
		UserID:    QAUserID,
		SessionID: uuid.NewString(),
		State:     InitialState(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logger.Info("Created session", zap.String("app", session.AppName), zap.String("session_id", session.ID))

	runner := runners.NewRunner(QAAgentName, agent, svc, logger)
	events, err := runner.Run(ctx, &core.RunRequest{
		UserID:     QAUserID,
		SessionID:  session.ID,
		NewMessage: core.NewTextContent(core.RoleUser, question),
	})
	if err != nil {
		return nil, err
	}
	response, err := FinalResponse(events)
	if err != nil {
		return nil, err
	}

	stored, err := svc.GetSession(ctx, &core.GetSessionRequest{AppName: QAAgentName, UserID: QAUserID, SessionID: session.ID})
	if err != nil {
		return nil, err
	}
	return &StatefulResult{SessionID: session.ID, Response: response, State: stored.State}, nil
}

// Print writes the response and the final session state with sorted keys.
func (r *StatefulResult) Print(w io.Writer) {
	fmt.Fprintf(w, "Final Response: %s\n", r.Response)
	fmt.Fprintln(w, "==== Session Event Exploration ====")
	fmt.Fprintln(w, "=== Final Session State ===")
	keys := make([]string, 0, len(r.State))
	for k := range r.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, r.State[k])
	}
}
