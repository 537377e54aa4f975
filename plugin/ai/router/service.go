package router

import (
	"context"
	"time"

	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
)

// Config configures the classifier.
type Config struct {
	Model                string
	ContinuationPrefixes []string
}

// ConfigFromProfile reads classifier settings from the profile.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		Model:                p.Classifier.Model,
		ContinuationPrefixes: p.Classifier.ContinuationPrefixes,
	}
}

// Service implements IntentClassifier.
// Stage 1: rule matching for chatter (0ms), then LLM classification.
// Stage 2: the override table, applied to whatever stage 1 produced.
type Service struct {
	ruleMatcher   *RuleMatcher
	llmClassifier *LLMClassifier
	overrides     []OverrideRule
	metrics       metrics.MetricsService
}

// NewService creates a classifier. llm may be nil, in which case every query
// that is not chatter classifies as unknown before overrides.
func NewService(llm ai.LLMService, cfg Config, m metrics.MetricsService) *Service {
	if m == nil {
		m = metrics.Noop()
	}
	s := &Service{
		ruleMatcher: NewRuleMatcher(),
		overrides:   DefaultOverrideRules(cfg.ContinuationPrefixes),
		metrics:     m,
	}
	if llm != nil {
		s.llmClassifier = NewLLMClassifier(llm, cfg.Model)
	}
	return s
}

// Classify classifies req.Query. It never fails: LLM errors degrade to an
// unknown intent which the override table may still correct.
func (s *Service) Classify(ctx context.Context, req ClassifyRequest) *QueryIntent {
	start := time.Now()
	logger := observability.LoggerFrom(ctx)

	intent := s.classifyModel(ctx, req)
	applyOverrides(s.overrides, intent, req)

	logger.Debug("query classified",
		"query", ai.Truncate(req.Query, 50),
		"intent", intent.Type,
		"confidence", intent.Confidence,
		"source", intent.Source,
		"override", intent.Override,
		"latency_ms", time.Since(start).Milliseconds())
	return intent
}

func (s *Service) classifyModel(ctx context.Context, req ClassifyRequest) *QueryIntent {
	// A pending yes/no must reach the override table untouched by chatter rules.
	if !req.PendingConfirmation {
		if intent, ok := s.ruleMatcher.Match(req.Query); ok {
			return intent
		}
	}

	if s.llmClassifier == nil {
		return &QueryIntent{
			Type:      IntentUnknown,
			Reasoning: "llm not configured",
			Source:    SourceFallback,
			Degraded:  true,
		}
	}

	start := time.Now()
	intent, err := s.llmClassifier.Classify(ctx, req)
	s.metrics.RecordLLMCall(ctx, "classify", time.Since(start), err == nil)
	if err != nil {
		observability.LoggerFrom(ctx).Warn("llm classification failed, using fallback", "error", err)
		return &QueryIntent{
			Type:      IntentUnknown,
			Reasoning: "classification unavailable: " + err.Error(),
			Source:    SourceFallback,
			Degraded:  true,
		}
	}
	return intent
}

var _ IntentClassifier = (*Service)(nil)
