package kaitlyn

import (
	"context"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/server"
)

// ArtifactName names the artifact of a completed scheduling task.
const ArtifactName = "scheduling_result"

// Executor serves Kaitlyn's Agent over A2A.
type Executor struct {
	agent *Agent
}

var _ server.AgentExecutor = (*Executor)(nil)

// NewExecutor creates the A2A executor for agent.
func NewExecutor(agent *Agent) *Executor {
	return &Executor{agent: agent}
}

// Execute streams the agent's progress as working updates. The task then either
// waits for input or completes with the answer as artifact.
func (e *Executor) Execute(ctx context.Context, reqCtx *server.RequestContext, queue server.EventQueue) error {
	if err := reqCtx.Validate(); err != nil {
		return a2a.NewInvalidParamsError(err.Error())
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

	err := e.agent.Stream(ctx, reqCtx.GetUserInput(), reqCtx.ContextID, func(item Response) error {
		parts := []a2a.Part{a2a.NewTextPart(item.Content)}
		switch {
		case !item.IsTaskComplete && !item.RequireUserInput:
			return updater.UpdateStatus(ctx, a2a.TaskStateWorking, updater.NewAgentMessage(parts...), false)
		case item.RequireUserInput:
			return updater.RequiresInput(ctx, updater.NewAgentMessage(parts...), true)
		default:
			if err := updater.AddArtifact(ctx, parts, ArtifactName); err != nil {
				return err
			}
			return updater.Complete(ctx, nil)
		}
	})
	if err != nil {
		e.agent.logger.Error("An error occurred while streaming the response", zap.Error(err))
		return a2a.NewInternalError(err.Error())
	}
	return nil
}

// Cancel is not supported.
func (e *Executor) Cancel(ctx context.Context, reqCtx *server.RequestContext, queue server.EventQueue) error {
	return a2a.NewUnsupportedOperationError()
}
