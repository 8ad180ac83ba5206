// Package server exposes an AgentExecutor as an A2A JSON-RPC endpoint.
package server

import (
	"context"
	"fmt"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// AgentExecutor runs agent logic for A2A requests and reports progress through
// the event queue.
type AgentExecutor interface {
	// Execute handles a new message. It returns once it has enqueued its last event.
	Execute(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error

	// Cancel asks the executor to stop work on reqCtx.CurrentTask.
	Cancel(ctx context.Context, reqCtx *RequestContext, queue EventQueue) error
}

// RequestContext carries one incoming request to an executor.
type RequestContext struct {
	TaskID    string
	ContextID string
	Message   *a2a.Message
	// CurrentTask is set when the message continues an existing task.
	CurrentTask *a2a.Task
	Metadata    map[string]any
}

// GetUserInput joins the text parts of the incoming message with newlines.
func (r *RequestContext) GetUserInput() string {
	return r.Message.Text()
}

// Validate checks what every executor needs.
func (r *RequestContext) Validate() error {
	if r.TaskID == "" || r.ContextID == "" {
		return fmt.Errorf("request context must have task id and context id")
	}
	if r.Message == nil {
		return fmt.Errorf("request context must have a message")
	}
	return nil
}
