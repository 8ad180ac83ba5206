// Package executor bridges A2A requests to a runner-driven agent.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/converters"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/server"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

// Config contains configuration for the RunnerExecutor.
type Config struct {
	// UserID owns the sessions created for A2A contexts.
	UserID string
	// Timeout bounds one agent run; zero leaves it to the server.
	Timeout time.Duration
	Logger  *zap.Logger
}

// RunnerExecutor runs an agent through a runner for every A2A message. The A2A
// context id doubles as the session id, so a conversation keeps its history.
type RunnerExecutor struct {
	runner *runners.Runner
	config Config
	logger *zap.Logger
}

var _ server.AgentExecutor = (*RunnerExecutor)(nil)

// NewRunnerExecutor creates an executor over runner.
func NewRunnerExecutor(runner *runners.Runner, config Config) *RunnerExecutor {
	if config.UserID == "" {
		config.UserID = "a2a_user"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunnerExecutor{
		runner: runner,
		config: config,
		logger: logger.With(zap.String("component", "runner_executor"), zap.String("app", runner.AppName())),
	}
}

// Execute runs the agent on the request's message. Intermediate model output,
// including streamed partial text, is published as working updates and the final
// response becomes the task artifact.
func (e *RunnerExecutor) Execute(ctx context.Context, reqCtx *server.RequestContext, queue server.EventQueue) error {
	if err := reqCtx.Validate(); err != nil {
		return a2a.NewInvalidParamsError(err.Error())
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	updater := server.NewTaskUpdater(queue, reqCtx.TaskID, reqCtx.ContextID)
	if reqCtx.CurrentTask == nil {
		if err := updater.Submit(ctx); err != nil {
			return err
		}
	}
	if err := updater.StartWork(ctx); err != nil {
		return err
	}

	content, err := converters.MessageToContent(reqCtx.Message)
	if err != nil {
		return a2a.NewInvalidParamsError(err.Error())
	}
	content.Role = core.RoleUser

	session, err := sessions.GetOrCreateSession(ctx, e.runner.SessionService(), e.runner.AppName(), e.config.UserID, reqCtx.ContextID, nil)
	if err != nil {
		return fmt.Errorf("failed to get or create session %s: %w", reqCtx.ContextID, err)
	}

	stream, err := e.runner.RunAsync(ctx, &core.RunRequest{
		UserID:     e.config.UserID,
		SessionID:  session.ID,
		NewMessage: content,
	})
	if err != nil {
		return err
	}
	defer func() {
		// Let the runner finish persisting whatever is left.
		go func() {
			for range stream {
			}
		}()
	}()

	logger := e.logger.With(zap.String("task_id", reqCtx.TaskID), zap.String("session_id", session.ID))
	for ev := range stream {
		switch {
		case ev.IsError():
			return fmt.Errorf("agent %s failed: %s", ev.Author, derefOr(ev.ErrorMessage, derefOr(ev.ErrorCode, "unknown error")))

		case ev.IsFinalResponse():
			parts, err := converters.EventParts(ev)
			if err != nil {
				return a2a.NewInvalidAgentResponseError(err.Error())
			}
			logger.Debug("Yielding final response", zap.Int("parts", len(parts)))
			if err := updater.AddArtifact(ctx, parts, ""); err != nil {
				return err
			}
			return updater.Complete(ctx, nil)

		case len(ev.GetFunctionCalls()) == 0 && ev.Content != nil:
			// Streamed chunks and interim model text both surface as working updates.
			msg, err := converters.ContentToMessage(ev.Content, reqCtx.TaskID, reqCtx.ContextID)
			if err != nil || len(msg.Parts) == 0 {
				continue
			}
			msg.Role = a2a.RoleAgent
			logger.Debug("Yielding update response", zap.Bool("partial", ev.Partial != nil && *ev.Partial))
			if err := updater.UpdateStatus(ctx, a2a.TaskStateWorking, msg, false); err != nil {
				return err
			}

		default:
			logger.Debug("Skipping event", zap.String("event_id", ev.ID))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return a2a.NewInvalidAgentResponseError("agent finished without a final response")
}

// Cancel is not supported.
func (e *RunnerExecutor) Cancel(ctx context.Context, reqCtx *server.RequestContext, queue server.EventQueue) error {
	return a2a.NewUnsupportedOperationError()
}

func derefOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
