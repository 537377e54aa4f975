// Package tools provides the tool registry, chain plans and the execution
// engine that runs them with retries, partial-failure handling and a
// confirmation gate for mutating actions.
package tools

import (
	"context"
	"encoding/json"
)

// Parameter types understood by argument validation.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Definition describes a tool to the planner and the validator.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	// Mutating tools change external state and require user confirmation.
	Mutating bool `json:"mutating,omitempty"`
}

// RequiredParameters returns the names of the required parameters.
func (d Definition) RequiredParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Tool is an executable capability.
type Tool interface {
	Definition() Definition
	// Execute runs the tool with validated arguments and returns a JSON result.
	Execute(ctx context.Context, args map[string]any) (json.RawMessage, error)
}

// FuncTool adapts a function into a Tool.
type FuncTool struct {
	def Definition
	fn  func(ctx context.Context, args map[string]any) (any, error)
}

// NewFuncTool creates a tool whose result is the JSON encoding of fn's value.
func NewFuncTool(def Definition, fn func(ctx context.Context, args map[string]any) (any, error)) *FuncTool {
	return &FuncTool{def: def, fn: fn}
}

func (t *FuncTool) Definition() Definition {
	return t.def
}

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	v, err := t.fn(ctx, args)
	if err != nil {
		return nil, err
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
