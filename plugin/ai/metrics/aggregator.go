package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator aggregates metrics in memory.
// Latency samples are kept in a bounded FIFO window per family.
type Aggregator struct {
	mu sync.RWMutex

	maxSamples int
	requests   map[string]*bucket
	tools      map[string]*bucket
	llm        map[string]*bucket
	latencies  []int64 // request latencies in milliseconds
}

type bucket struct {
	count      int64
	success    int64
	latencySum int64 // in milliseconds
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(maxSamples int) *Aggregator {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &Aggregator{
		maxSamples: maxSamples,
		requests:   make(map[string]*bucket),
		tools:      make(map[string]*bucket),
		llm:        make(map[string]*bucket),
		latencies:  make([]int64, 0, maxSamples),
	}
}

// RecordRequest records a single agent turn.
func (a *Aggregator) RecordRequest(intent string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	record(a.requests, intent, latency, success)
	if len(a.latencies) >= a.maxSamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, latency.Milliseconds())
}

// RecordToolCall records a single tool call.
func (a *Aggregator) RecordToolCall(toolName string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record(a.tools, toolName, latency, success)
}

// RecordLLMCall records a single LLM call.
func (a *Aggregator) RecordLLMCall(op string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record(a.llm, op, latency, success)
}

// Snapshot returns the aggregated stats.
func (a *Aggregator) Snapshot() *AgentMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &AgentMetrics{
		IntentStats: toStats(a.requests),
		ToolStats:   toStats(a.tools),
		LLMStats:    toStats(a.llm),
	}
	for _, b := range a.requests {
		stats.RequestCount += b.count
		stats.SuccessCount += b.success
	}
	stats.LatencyP50 = time.Duration(percentile(a.latencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(a.latencies, 95)) * time.Millisecond
	return stats
}

func record(m map[string]*bucket, key string, latency time.Duration, success bool) {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	b.count++
	if success {
		b.success++
	}
	b.latencySum += latency.Milliseconds()
}

func toStats(m map[string]*bucket) map[string]*CallStat {
	out := make(map[string]*CallStat, len(m))
	for key, b := range m {
		stat := &CallStat{Count: b.count}
		if b.count > 0 {
			stat.SuccessRate = float32(b.success) / float32(b.count)
			stat.AvgLatency = time.Duration(b.latencySum/b.count) * time.Millisecond
		}
		out[key] = stat
	}
	return out
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
