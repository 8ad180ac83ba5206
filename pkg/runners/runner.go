// Package runners provides orchestration implementations for agent execution.
package runners

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/ptr"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

// Runner drives one agent against sessions of one app: it records the user's
// message, runs the agent and persists every completed event.
type Runner struct {
	appName        string
	agent          core.BaseAgent
	sessionService core.SessionService
	logger         *zap.Logger
}

// NewRunner creates a new runner.
func NewRunner(appName string, agent core.BaseAgent, sessionService core.SessionService, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		appName:        appName,
		agent:          agent,
		sessionService: sessionService,
		logger:         logger.With(zap.String("component", "runner"), zap.String("app", appName)),
	}
}

// AppName returns the app the runner's sessions belong to.
func (r *Runner) AppName() string {
	return r.appName
}

// Agent returns the root agent.
func (r *Runner) Agent() core.BaseAgent {
	return r.agent
}

// SessionService returns the service sessions are stored in.
func (r *Runner) SessionService() core.SessionService {
	return r.sessionService
}

// RunAsync executes the agent for req and returns its event stream. The session
// must already exist.
func (r *Runner) RunAsync(ctx context.Context, req *core.RunRequest) (core.EventStream, error) {
	session, err := r.sessionService.GetSession(ctx, &core.GetSessionRequest{
		AppName:   r.appName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, req.SessionID)
	}

	agentToRun := r.findAgentToRun(session)
	invocationCtx := core.NewInvocationContext(agentToRun, session, r.sessionService).
		WithRunConfig(req.RunConfig)

	if req.NewMessage != nil {
		userEvent := core.NewUserEvent(invocationCtx.InvocationID, req.NewMessage)
		if err := r.sessionService.AppendEvent(ctx, session, userEvent); err != nil {
			return nil, fmt.Errorf("failed to append message to session: %w", err)
		}
		invocationCtx.WithUserContent(req.NewMessage)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := invocationCtx.RunConfig.Timeout; timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	agentStream, err := agentToRun.RunAsync(runCtx, invocationCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to run agent %s: %w", agentToRun.Name(), err)
	}

	logger := r.logger.With(zap.String("session_id", session.ID), zap.String("invocation_id", invocationCtx.InvocationID))
	logger.Debug("Invocation started", zap.String("agent", agentToRun.Name()))

	eventChan := make(chan *core.Event, 100)
	go func() {
		defer close(eventChan)
		defer cancel()

		for event := range agentStream {
			if !ptr.Deref(event.Partial, false) {
				if err := r.sessionService.AppendEvent(ctx, session, event); err != nil {
					logger.Error("Failed to append event to session", zap.String("event_id", event.ID), zap.Error(err))
				}
			}

			select {
			case eventChan <- event:
			case <-ctx.Done():
				// Drain so the agent goroutine can finish.
				for range agentStream {
				}
				return
			}
		}
		logger.Debug("Invocation finished")
	}()

	return eventChan, nil
}

// Run is a synchronous wrapper around RunAsync that collects all events.
func (r *Runner) Run(ctx context.Context, req *core.RunRequest) ([]*core.Event, error) {
	eventStream, err := r.RunAsync(ctx, req)
	if err != nil {
		return nil, err
	}

	var events []*core.Event
	for event := range eventStream {
		events = append(events, event)
	}
	return events, ctx.Err()
}

// findAgentToRun picks up a transfer requested by the last event, falling back to
// the root agent.
func (r *Runner) findAgentToRun(session *core.Session) core.BaseAgent {
	if last := session.GetLastEvent(); last != nil && last.Actions.TransferToAgent != nil {
		if agent := r.agent.FindAgent(*last.Actions.TransferToAgent); agent != nil {
			return agent
		}
	}
	return r.agent
}
