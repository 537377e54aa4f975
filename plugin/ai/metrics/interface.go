// Package metrics provides in-process counters for agent turns, LLM calls and tool calls.
package metrics

import (
	"context"
	"time"
)

// MetricsService records latency and outcome for the hot paths of the agent core.
type MetricsService interface {
	// RecordRequest records one agent turn, keyed by intent type.
	RecordRequest(ctx context.Context, intent string, latency time.Duration, success bool)

	// RecordToolCall records one tool step, keyed by tool name.
	RecordToolCall(ctx context.Context, toolName string, latency time.Duration, success bool)

	// RecordLLMCall records one LLM completion, keyed by operation (classify, plan, synthesize...).
	RecordLLMCall(ctx context.Context, op string, latency time.Duration, success bool)

	// GetStats returns aggregated statistics.
	GetStats(ctx context.Context) (*AgentMetrics, error)
}

// AgentMetrics represents aggregated metrics.
type AgentMetrics struct {
	RequestCount int64                `json:"request_count"`
	SuccessCount int64                `json:"success_count"`
	LatencyP50   time.Duration        `json:"latency_p50"`
	LatencyP95   time.Duration        `json:"latency_p95"`
	IntentStats  map[string]*CallStat `json:"intent_stats"`
	ToolStats    map[string]*CallStat `json:"tool_stats"`
	LLMStats     map[string]*CallStat `json:"llm_stats"`
}

// CallStat represents statistics for a single key.
type CallStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// Noop returns a MetricsService that discards everything.
func Noop() MetricsService { return noop{} }

type noop struct{}

func (noop) RecordRequest(context.Context, string, time.Duration, bool)  {}
func (noop) RecordToolCall(context.Context, string, time.Duration, bool) {}
func (noop) RecordLLMCall(context.Context, string, time.Duration, bool)  {}
func (noop) GetStats(context.Context) (*AgentMetrics, error) {
	return &AgentMetrics{}, nil
}
