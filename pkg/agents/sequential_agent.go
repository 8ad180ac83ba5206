package agents

import (
	"context"
	"fmt"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

// SequentialAgent runs its sub-agents one after another. Each sub-agent sees the
// completed events of the ones before it.
type SequentialAgent struct {
	*BaseAgentImpl
}

// NewSequentialAgent creates a sequential agent over agents, in order.
func NewSequentialAgent(name, description string, agents ...core.BaseAgent) *SequentialAgent {
	a := &SequentialAgent{BaseAgentImpl: NewBaseAgent(name, description)}
	a.self = a
	for _, sub := range agents {
		a.addSubAgent(sub)
	}
	return a
}

// AddSubAgent appends agent to the sequence.
func (a *SequentialAgent) AddSubAgent(agent core.BaseAgent) {
	a.addSubAgent(agent)
}

// RunAsync executes the sub-agents in order. An error event from a sub-agent, or an
// EndInvocation request, stops the sequence.
func (a *SequentialAgent) RunAsync(ctx context.Context, invocationCtx *core.InvocationContext) (core.EventStream, error) {
	if len(a.subAgents) == 0 {
		return nil, fmt.Errorf("sequential agent %s has no sub-agents", a.name)
	}

	local := localContext(invocationCtx)

	eventChan := make(chan *core.Event, 10)
	go func() {
		defer close(eventChan)

		for _, sub := range a.subAgents {
			subCtx := local.CreateSubContext(sub)
			stream, err := sub.RunAsync(ctx, subCtx)
			if err != nil {
				ev := errorEvent(local.InvocationID, a.name, ErrorCodeLLM, fmt.Errorf("error executing sub-agent %s: %w", sub.Name(), err))
				_ = publish(ctx, eventChan, ev)
				return
			}

			failed := false
			for ev := range stream {
				if err := publish(ctx, eventChan, ev); err != nil {
					return
				}
				if ev.IsError() {
					failed = true
					continue
				}
				if ev.Partial == nil || !*ev.Partial {
					local.Session.AddEvent(ev)
					local.Session.UpdateState(ev.Actions.StateDelta)
				}
			}
			if failed || subCtx.EndInvocation || ctx.Err() != nil {
				return
			}
		}
	}()
	return eventChan, nil
}
