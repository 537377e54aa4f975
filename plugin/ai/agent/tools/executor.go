package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
)

// ResilientToolExecutor runs one tool call with a per-attempt timeout and
// bounded exponential-backoff retry of transient failures.
type ResilientToolExecutor struct {
	maxRetries     int
	retryDelay     time.Duration
	timeout        time.Duration
	metricsService metrics.MetricsService
}

// ExecutorOption configures a ResilientToolExecutor.
type ExecutorOption func(*ResilientToolExecutor)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.maxRetries = max(n, 0)
	}
}

// WithRetryDelay sets the base delay between retry attempts.
func WithRetryDelay(d time.Duration) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.retryDelay = d
	}
}

// WithTimeout sets the timeout for each execution attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *ResilientToolExecutor) {
		e.timeout = d
	}
}

// NewResilientToolExecutor creates an executor; metricsService may be nil.
func NewResilientToolExecutor(metricsService metrics.MetricsService, opts ...ExecutorOption) *ResilientToolExecutor {
	if metricsService == nil {
		metricsService = metrics.Noop()
	}
	e := &ResilientToolExecutor{
		maxRetries:     2,
		retryDelay:     200 * time.Millisecond,
		timeout:        15 * time.Second,
		metricsService: metricsService,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutionResult describes one tool call including its retries.
type ExecutionResult struct {
	Result       json.RawMessage
	Error        error
	Attempts     int
	TotalLatency time.Duration
}

// Execute runs tool with args. A canceled ctx stops further attempts; an
// attempt already running is bounded by the per-attempt timeout.
func (e *ResilientToolExecutor) Execute(ctx context.Context, tool Tool, args map[string]any) ExecutionResult {
	start := time.Now()
	name := tool.Definition().Name
	logger := observability.LoggerFrom(ctx)

	var lastErr error
	attempts := 0

attemptsLoop:
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = aierrors.ContextCanceled(ctx.Err())
			break attemptsLoop
		}
		attempts++

		execCtx, cancel := context.WithTimeout(ctx, e.timeout)
		result, err := tool.Execute(execCtx, args)
		cancel()

		if err == nil {
			e.metricsService.RecordToolCall(ctx, name, time.Since(start), true)
			logger.Debug("tool execution succeeded",
				slog.String("tool", name),
				slog.Int("attempt", attempts),
				slog.Duration("duration", time.Since(start)))
			return ExecutionResult{Result: result, Attempts: attempts, TotalLatency: time.Since(start)}
		}

		lastErr = err
		logger.Warn("tool execution failed",
			slog.String("tool", name),
			slog.Int("attempt", attempts),
			slog.String("class", ClassifyError(err).String()),
			slog.String("error", err.Error()))

		if !IsTransient(err) {
			break attemptsLoop
		}

		if attempt < e.maxRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * e.retryDelay
			select {
			case <-ctx.Done():
				lastErr = aierrors.ContextCanceled(ctx.Err())
				break attemptsLoop
			case <-time.After(wait):
			}
		}
	}

	e.metricsService.RecordToolCall(ctx, name, time.Since(start), false)
	return ExecutionResult{
		Error:        aierrors.ToolExecutionFailed(name, lastErr).WithContext("attempts", attempts),
		Attempts:     attempts,
		TotalLatency: time.Since(start),
	}
}
