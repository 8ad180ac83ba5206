package agents

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

// InstructionProvider computes an agent's system instruction per invocation.
// Its output is used verbatim; no state placeholders are substituted.
type InstructionProvider func(ctx *core.ReadonlyContext) string

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_:]*)(\?)?\}`)

// InjectState replaces {key} placeholders with values from state. A trailing "?"
// marks the key optional and renders missing values as an empty string; missing
// required keys are left untouched. Anything that is not a bare identifier in braces,
// such as inline JSON, is not a placeholder.
func InjectState(template string, state map[string]any) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		groups := placeholder.FindStringSubmatch(m)
		key, optional := groups[1], groups[2] == "?"
		v, ok := state[key]
		switch {
		case ok && v != nil:
			return fmt.Sprint(v)
		case optional:
			return ""
		default:
			return m
		}
	})
}
