package tools

import (
	"context"
	"encoding/json"
	"sync"
)

// MockTool is a scripted Tool that records its calls.
type MockTool struct {
	Def Definition
	// Fn computes the result; when nil, Result is returned.
	Fn     func(ctx context.Context, args map[string]any) (json.RawMessage, error)
	Result json.RawMessage

	mu    sync.Mutex
	calls []map[string]any
	// errs are returned, in order, by the first calls.
	errs []error
}

// NewMockTool creates a mock returning result.
func NewMockTool(name string, result string, params ...Parameter) *MockTool {
	return &MockTool{
		Def:    Definition{Name: name, Description: "mock " + name, Parameters: params},
		Result: json.RawMessage(result),
	}
}

// Mutating marks the tool as mutating.
func (m *MockTool) Mutating() *MockTool {
	m.Def.Mutating = true
	return m
}

// FailWith makes the next calls fail with errs, in order.
func (m *MockTool) FailWith(errs ...error) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

func (m *MockTool) Definition() Definition {
	return m.Def
}

func (m *MockTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if m.Fn != nil {
		return m.Fn(ctx, args)
	}
	return m.Result, nil
}

// Calls returns the arguments of every call.
func (m *MockTool) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.calls))
	copy(out, m.calls)
	return out
}
