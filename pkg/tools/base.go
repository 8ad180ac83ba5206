// Package tools provides concrete implementations of tool types.
package tools

import (
	"encoding/json"
	"reflect"
)

// BaseToolImpl provides the identity part of the BaseTool interface.
type BaseToolImpl struct {
	name          string
	description   string
	isLongRunning bool
}

// NewBaseTool creates a new base tool implementation.
func NewBaseTool(name, description string) *BaseToolImpl {
	return &BaseToolImpl{
		name:        name,
		description: description,
	}
}

// Name returns the tool's unique identifier.
func (t *BaseToolImpl) Name() string {
	return t.name
}

// Description returns a description of the tool's purpose.
func (t *BaseToolImpl) Description() string {
	return t.description
}

// IsLongRunning indicates if this is a long-running operation.
func (t *BaseToolImpl) IsLongRunning() bool {
	return t.isLongRunning
}

// SetLongRunning sets whether this tool is long-running.
func (t *BaseToolImpl) SetLongRunning(longRunning bool) {
	t.isLongRunning = longRunning
}

// ResponseMap normalizes a tool result into the object a function response carries.
// Maps pass through, structs become their JSON object, anything else is wrapped
// under "result".
func ResponseMap(v any) map[string]any {
	switch r := v.(type) {
	case nil:
		return map[string]any{"result": nil}
	case map[string]any:
		return r
	case string:
		return map[string]any{"result": r}
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct || rv.Kind() == reflect.Map {
		if data, err := json.Marshal(v); err == nil {
			var m map[string]any
			if json.Unmarshal(data, &m) == nil && m != nil {
				return m
			}
		}
	}
	return map[string]any{"result": v}
}

// ErrorResponse is the function response returned to the model when a tool fails.
func ErrorResponse(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
