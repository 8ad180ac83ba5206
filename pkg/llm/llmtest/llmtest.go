// Package llmtest provides a scripted core.LLMConnection for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

// ErrExhausted is returned once every scripted step has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted model turn.
type Step struct {
	Response *core.LLMResponse
	Err      error
	// Func, when set, computes the response from the request.
	Func func(*core.LLMRequest) (*core.LLMResponse, error)
}

// Text answers with a single text part.
func Text(text string) Step {
	return Step{Response: &core.LLMResponse{
		Content:      core.NewTextContent(core.RoleModel, text),
		TurnComplete: true,
	}}
}

// Call answers with one function call.
func Call(name string, args map[string]any) Step {
	return Step{Response: &core.LLMResponse{
		Content: &genai.Content{
			Role:  core.RoleModel,
			Parts: []*genai.Part{genai.NewPartFromFunctionCall(name, args)},
		},
		TurnComplete: true,
	}}
}

// Fail answers with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Func answers with whatever fn returns.
func Func(fn func(*core.LLMRequest) (*core.LLMResponse, error)) Step {
	return Step{Func: fn}
}

// Scripted replays its steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []*core.LLMRequest
	// Repeat replays the last step forever instead of failing with ErrExhausted.
	Repeat bool
}

var _ core.LLMConnection = (*Scripted)(nil)

// New creates a scripted connection.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []*core.LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.LLMRequest(nil), s.requests...)
}

// LastRequest returns the most recent request, or nil.
func (s *Scripted) LastRequest() *core.LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *Scripted) next(request *core.LLMRequest) (*core.LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, request)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, ErrExhausted
	}
	step := s.steps[0]
	if len(s.steps) > 1 || !s.Repeat {
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	if step.Func != nil {
		return step.Func(request)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return cloneResponse(step.Response), nil
}

// GenerateContent returns the next scripted response.
func (s *Scripted) GenerateContent(ctx context.Context, request *core.LLMRequest) (*core.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.next(request)
}

// GenerateContentStream emits the next response's text word by word as partial
// responses, then the full response.
func (s *Scripted) GenerateContentStream(ctx context.Context, request *core.LLMRequest) (<-chan *core.LLMResponse, error) {
	resp, err := s.next(request)
	if err != nil {
		return nil, err
	}

	out := make(chan *core.LLMResponse, 16)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(core.ContentText(resp.Content), " ") {
			if word == "" {
				continue
			}
			select {
			case out <- &core.LLMResponse{Content: core.NewTextContent(core.RoleModel, word), Partial: true}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- resp:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// Close is a no-op.
func (s *Scripted) Close(ctx context.Context) error {
	return nil
}

// cloneResponse copies the content so agents may mutate parts, e.g. to assign call IDs.
func cloneResponse(resp *core.LLMResponse) *core.LLMResponse {
	if resp == nil {
		return &core.LLMResponse{TurnComplete: true}
	}
	out := *resp
	if resp.Content != nil {
		content := *resp.Content
		content.Parts = make([]*genai.Part, len(resp.Content.Parts))
		for i, p := range resp.Content.Parts {
			part := *p
			if p.FunctionCall != nil {
				fc := *p.FunctionCall
				part.FunctionCall = &fc
			}
			content.Parts[i] = &part
		}
		out.Content = &content
	}
	return &out
}
