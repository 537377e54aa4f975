package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Service implements MetricsService on top of an in-memory Aggregator.
type Service struct {
	aggregator *Aggregator
	logSlow    time.Duration
}

// NewService creates a new metrics service.
// Calls slower than logSlow are logged at warn level; zero disables that.
func NewService(maxSamples int, logSlow time.Duration) *Service {
	return &Service{
		aggregator: NewAggregator(maxSamples),
		logSlow:    logSlow,
	}
}

// RecordRequest records an agent turn metric.
func (s *Service) RecordRequest(_ context.Context, intent string, latency time.Duration, success bool) {
	s.aggregator.RecordRequest(intent, latency, success)
	s.warnIfSlow("agent turn", intent, latency)
}

// RecordToolCall records a tool call metric.
func (s *Service) RecordToolCall(_ context.Context, toolName string, latency time.Duration, success bool) {
	s.aggregator.RecordToolCall(toolName, latency, success)
	s.warnIfSlow("tool call", toolName, latency)
}

// RecordLLMCall records an LLM call metric.
func (s *Service) RecordLLMCall(_ context.Context, op string, latency time.Duration, success bool) {
	s.aggregator.RecordLLMCall(op, latency, success)
	s.warnIfSlow("llm call", op, latency)
}

// GetStats returns the current aggregated statistics.
func (s *Service) GetStats(_ context.Context) (*AgentMetrics, error) {
	return s.aggregator.Snapshot(), nil
}

func (s *Service) warnIfSlow(kind, key string, latency time.Duration) {
	if s.logSlow > 0 && latency > s.logSlow {
		slog.Warn("slow "+kind, "key", key, "duration_ms", latency.Milliseconds())
	}
}

var _ MetricsService = (*Service)(nil)
