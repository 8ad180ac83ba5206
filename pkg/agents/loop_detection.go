package agents

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

var (
	// ErrMaxTurns is reported when the model keeps calling tools past the turn limit.
	ErrMaxTurns = errors.New("maximum conversation turns exceeded")
	// ErrToolLoop is reported when the model repeats an identical tool call.
	ErrToolLoop = errors.New("repeated identical tool call")
	// ErrTooManyToolCalls is reported when an invocation exceeds its tool call budget.
	ErrTooManyToolCalls = errors.New("tool call limit exceeded")
)

// repeatLimit is the number of identical consecutive tool call turns treated as a loop.
const repeatLimit = 3

// LoopDetector watches the tool calls of one invocation.
type LoopDetector struct {
	maxToolCalls   int
	totalToolCalls int
	lastSignature  string
	repeats        int
}

// NewLoopDetector creates a detector allowing maxToolCalls calls; zero or less disables the budget.
func NewLoopDetector(maxToolCalls int) *LoopDetector {
	return &LoopDetector{maxToolCalls: maxToolCalls}
}

// Observe records one turn's function calls and reports a loop or an exhausted budget.
func (ld *LoopDetector) Observe(calls []*genai.FunctionCall) error {
	ld.totalToolCalls += len(calls)
	if ld.maxToolCalls > 0 && ld.totalToolCalls > ld.maxToolCalls {
		return fmt.Errorf("%w: %d calls (max %d)", ErrTooManyToolCalls, ld.totalToolCalls, ld.maxToolCalls)
	}

	sig := signature(calls)
	if sig == ld.lastSignature {
		ld.repeats++
	} else {
		ld.lastSignature = sig
		ld.repeats = 1
	}
	if ld.repeats >= repeatLimit {
		return fmt.Errorf("%w: %s called %d times in a row", ErrToolLoop, calls[0].Name, ld.repeats)
	}
	return nil
}

func signature(calls []*genai.FunctionCall) string {
	type call struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}
	list := make([]call, len(calls))
	for i, c := range calls {
		list[i] = call{Name: c.Name, Args: c.Args}
	}
	data, _ := json.Marshal(list)
	return string(data)
}
