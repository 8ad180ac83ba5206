// Package agents provides concrete implementations of agent types.
package agents

import (
	"context"
	"fmt"
	"slices"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/ptr"
)

// BaseAgentImpl provides the hierarchy part of the BaseAgent interface.
// Concrete agents embed it and supply RunAsync.
type BaseAgentImpl struct {
	name        string
	description string
	subAgents   []core.BaseAgent
	parentAgent core.BaseAgent
	// self is the embedding agent, returned by FindAgent.
	self core.BaseAgent
}

// NewBaseAgent creates a new base agent implementation.
func NewBaseAgent(name, description string) *BaseAgentImpl {
	return &BaseAgentImpl{
		name:        name,
		description: description,
		subAgents:   make([]core.BaseAgent, 0),
	}
}

// Name returns the agent's unique identifier.
func (a *BaseAgentImpl) Name() string {
	return a.name
}

// Description returns a description of the agent's purpose.
func (a *BaseAgentImpl) Description() string {
	return a.description
}

// SubAgents returns the list of child agents in the hierarchy.
func (a *BaseAgentImpl) SubAgents() []core.BaseAgent {
	return a.subAgents
}

// ParentAgent returns the parent agent, if any.
func (a *BaseAgentImpl) ParentAgent() core.BaseAgent {
	return a.parentAgent
}

// SetParentAgent sets the parent agent.
func (a *BaseAgentImpl) SetParentAgent(parent core.BaseAgent) {
	a.parentAgent = parent
}

// FindAgent searches this agent and its descendants by name.
func (a *BaseAgentImpl) FindAgent(name string) core.BaseAgent {
	if a.name == name {
		if a.self != nil {
			return a.self
		}
		return a
	}
	for _, sub := range a.subAgents {
		if found := sub.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// FindSubAgent searches for a direct sub-agent by name.
func (a *BaseAgentImpl) FindSubAgent(name string) core.BaseAgent {
	for _, sub := range a.subAgents {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}

// RunAsync fails: BaseAgentImpl has no behavior of its own.
func (a *BaseAgentImpl) RunAsync(ctx context.Context, invocationCtx *core.InvocationContext) (core.EventStream, error) {
	return nil, fmt.Errorf("agent %s does not implement RunAsync", a.name)
}

func (a *BaseAgentImpl) addSubAgent(child core.BaseAgent) {
	child.SetParentAgent(a.self)
	a.subAgents = append(a.subAgents, child)
}

// localContext copies invocationCtx with a private session clone that already holds
// the user message, so agents never mutate the caller's session.
func localContext(invocationCtx *core.InvocationContext) *core.InvocationContext {
	local := *invocationCtx
	if invocationCtx.Session != nil {
		local.Session = invocationCtx.Session.Clone()
	} else {
		local.Session = core.NewSession("", "", "")
	}
	if uc := local.UserContent; uc != nil && !slices.ContainsFunc(local.Session.Events, func(ev *core.Event) bool {
		return ev.Content == uc
	}) {
		local.Session.AddEvent(core.NewUserEvent(local.InvocationID, uc))
	}
	return &local
}

// publish sends ev unless ctx is done.
func publish(ctx context.Context, ch chan<- *core.Event, ev *core.Event) error {
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorEvent builds an event reporting err from author.
func errorEvent(invocationID, author, code string, err error) *core.Event {
	ev := core.NewEvent(invocationID, author)
	ev.ErrorCode = ptr.Ptr(code)
	ev.ErrorMessage = ptr.Ptr(err.Error())
	ev.TurnComplete = ptr.Ptr(true)
	return ev
}

// Run drains agent's event stream into a slice.
func Run(ctx context.Context, agent core.BaseAgent, invocationCtx *core.InvocationContext) ([]*core.Event, error) {
	stream, err := agent.RunAsync(ctx, invocationCtx)
	if err != nil {
		return nil, err
	}
	var events []*core.Event
	for ev := range stream {
		events = append(events, ev)
	}
	return events, ctx.Err()
}
