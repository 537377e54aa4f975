package context

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/memory"
)

// MemoryContext is the per-request view of a user's memory.
type MemoryContext struct {
	UserID           string                  `json:"user_id"`
	SessionID        string                  `json:"session_id"`
	EpisodicMemories []memory.EpisodicMemory `json:"episodic_memories"`
	SemanticMemories []memory.ScoredConcept  `json:"semantic_memories"`
	ContextWindow    Window                  `json:"context_window"`

	// Summary stands in for items dropped to fit the budget.
	Summary          string  `json:"summary,omitempty"`
	CompressionRatio float64 `json:"compression_ratio"`
	TokenCount       int     `json:"token_count"`

	// Degraded is set when one of the two memory layers failed.
	Degraded bool `json:"degraded,omitempty"`
}

// Window spans the included episodic memories.
type Window struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	RelevanceScore float64   `json:"relevance_score"`
}

// IsEmpty reports whether nothing was assembled.
func (mc *MemoryContext) IsEmpty() bool {
	return mc == nil || (len(mc.EpisodicMemories) == 0 && len(mc.SemanticMemories) == 0 && mc.Summary == "")
}

// Config tunes assembly.
type Config struct {
	// CompressionFraction triggers summarization when more than this fraction
	// of candidate items had to be dropped.
	CompressionFraction float64
	EpisodicLimit       int
	SemanticLimit       int
	SemanticThreshold   float64
	// Scoring ranks episodes with the same weights as episodic search.
	Scoring memory.Config
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		CompressionFraction: 0.3,
		EpisodicLimit:       20,
		SemanticLimit:       10,
		Scoring:             memory.DefaultConfig(),
	}
}

// ConfigFromProfile maps the assembler section of the profile. Search
// threshold and episode weights come from the memory configuration.
func ConfigFromProfile(p profile.AssemblerProfile, mem memory.Config) Config {
	return Config{
		CompressionFraction: p.CompressionFraction,
		EpisodicLimit:       p.EpisodicLimit,
		SemanticLimit:       p.SemanticLimit,
		SemanticThreshold:   mem.SearchThreshold,
		Scoring:             mem,
	}
}

// Stats tracks assembly metrics.
type Stats struct {
	TotalAssemblies int64
	Compressions    int64
	Degraded        int64
	AverageTokens   float64
}

// Assembler merges episodic and semantic memory under a token budget.
type Assembler struct {
	episodic memory.EpisodicManager
	semantic memory.SemanticManager
	llm      ai.LLMService // optional, used for compression
	cfg      Config

	assemblies   atomic.Int64
	compressions atomic.Int64
	degraded     atomic.Int64
	tokens       atomic.Int64
}

// NewAssembler creates an assembler. llm may be nil, which disables compression.
func NewAssembler(episodic memory.EpisodicManager, semantic memory.SemanticManager, llm ai.LLMService, cfg Config) *Assembler {
	d := DefaultConfig()
	if cfg.CompressionFraction <= 0 {
		cfg.CompressionFraction = d.CompressionFraction
	}
	if cfg.EpisodicLimit <= 0 {
		cfg.EpisodicLimit = d.EpisodicLimit
	}
	if cfg.SemanticLimit <= 0 {
		cfg.SemanticLimit = d.SemanticLimit
	}
	if w := cfg.Scoring; w.RecencyWeight == 0 && w.ImportanceWeight == 0 && w.KeywordWeight == 0 {
		cfg.Scoring = d.Scoring
	}
	return &Assembler{episodic: episodic, semantic: semantic, llm: llm, cfg: cfg}
}

// Assemble builds the context for query. The serialized result never exceeds
// tokenBudget, so a non-positive budget yields an empty context without
// touching the stores. It fails only when both memory layers fail.
func (a *Assembler) Assemble(ctx context.Context, userID, sessionID, query string, tokenBudget int) (*MemoryContext, error) {
	a.assemblies.Add(1)
	if tokenBudget <= 0 {
		return &MemoryContext{UserID: userID, SessionID: sessionID}, nil
	}
	logger := observability.LoggerFrom(ctx)

	var (
		episodes      []memory.EpisodicMemory
		concepts      []memory.ScoredConcept
		epErr, semErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		episodes, epErr = a.episodic.GetContext(ctx, userID, sessionID, a.cfg.EpisodicLimit)
		return nil
	})
	g.Go(func() error {
		if a.semantic == nil {
			return nil
		}
		concepts, semErr = a.semantic.Search(ctx, userID, query, a.cfg.SemanticThreshold, a.cfg.SemanticLimit)
		return nil
	})
	_ = g.Wait()

	mc := &MemoryContext{UserID: userID, SessionID: sessionID}
	if epErr != nil && (semErr != nil || a.semantic == nil) {
		a.degraded.Add(1)
		return nil, aierrors.MemoryStoreError("assemble context", epErr)
	}
	if epErr != nil || semErr != nil {
		mc.Degraded = true
		a.degraded.Add(1)
		logger.Warn("memory layer unavailable, assembling partial context",
			"user_id", userID, "episodic_error", epErr, "semantic_error", semErr)
	}

	candidates := buildCandidates(a.cfg.Scoring, query, episodes, concepts)
	included, dropped := a.fit(mc, candidates, tokenBudget)

	if len(candidates) > 0 && float64(len(dropped))/float64(len(candidates)) > a.cfg.CompressionFraction && a.llm != nil {
		// Refit with room left for the summary entry.
		reserve := tokenBudget / summaryReserveDivisor
		compact, summarized := a.fit(mc, candidates, tokenBudget-reserve)
		err := a.compress(ctx, mc, summarized, tokenBudget)
		switch {
		case err != nil:
			logger.Warn("context compression failed", "user_id", userID, "dropped", len(summarized), "error", err)
			materialize(mc, included)
		case mc.Summary == "":
			materialize(mc, included)
		default:
			included = compact
			mc.CompressionRatio = float64(len(summarized)) / float64(len(candidates))
			a.compressions.Add(1)
		}
	}

	mc.ContextWindow = window(included)
	mc.TokenCount = EstimateTokens(Serialize(mc))
	a.tokens.Add(int64(mc.TokenCount))
	return mc, nil
}

// buildCandidates scores concepts by similarity and episodes with the
// episodic search formula. Episodes arrive oldest first.
func buildCandidates(scoring memory.Config, query string, episodes []memory.EpisodicMemory, concepts []memory.ScoredConcept) []item {
	out := make([]item, 0, len(episodes)+len(concepts))
	for i := range concepts {
		out = append(out, item{semantic: &concepts[i], score: concepts[i].Similarity, order: i})
	}
	queryTokens := ai.Tokenize(query)
	var newest time.Time
	for _, ep := range episodes {
		if ep.Timestamp.After(newest) {
			newest = ep.Timestamp
		}
	}
	for i := range episodes {
		score := scoring.ScoreEpisode(episodes[i], newest, queryTokens)
		out = append(out, item{episodic: &episodes[i], score: score, order: i})
	}
	return out
}

// fit greedily admits whole items by score, re-measuring the serialized
// context after each admission.
func (a *Assembler) fit(mc *MemoryContext, candidates []item, budget int) (included, dropped []item) {
	ranked := make([]item, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if (ranked[i].semantic != nil) != (ranked[j].semantic != nil) {
			return ranked[i].semantic != nil
		}
		// Newer episodes win ties.
		return ranked[i].order > ranked[j].order
	})

	for _, it := range ranked {
		trial := append(append([]item(nil), included...), it)
		materialize(mc, trial)
		if EstimateTokens(Serialize(mc)) <= budget {
			included = trial
		} else {
			dropped = append(dropped, it)
		}
	}
	materialize(mc, included)
	return included, dropped
}

// materialize writes items into mc in section order.
func materialize(mc *MemoryContext, items []item) {
	sorted := make([]item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].order < sorted[j].order })

	mc.SemanticMemories = mc.SemanticMemories[:0]
	mc.EpisodicMemories = mc.EpisodicMemories[:0]
	for _, it := range sorted {
		if it.semantic != nil {
			mc.SemanticMemories = append(mc.SemanticMemories, *it.semantic)
		} else {
			mc.EpisodicMemories = append(mc.EpisodicMemories, *it.episodic)
		}
	}
}

// summaryReserveDivisor sets the budget share (1/n) kept free for the summary.
const summaryReserveDivisor = 4

const compressionPrompt = `Summarize the following memory items in at most three short sentences.
Keep names, places, dates and user preferences. Output plain text only.`

func (a *Assembler) compress(ctx context.Context, mc *MemoryContext, dropped []item, budget int) error {
	var sb strings.Builder
	for _, it := range dropped {
		sb.WriteString(it.text())
		sb.WriteString("\n")
	}
	reply, err := a.llm.Chat(ctx, []ai.Message{ai.SystemPrompt(compressionPrompt), ai.UserMessage(sb.String())},
		ai.WithOperation("compress"), ai.WithTemperature(0.1), ai.WithMaxTokens(256))
	if err != nil {
		return err
	}
	summary := strings.TrimSpace(reply)
	if summary == "" {
		return errors.New("empty summary")
	}
	mc.Summary = fitText(summary, budget, func(s string) bool {
		mc.Summary = s
		return EstimateTokens(Serialize(mc)) <= budget
	})
	return nil
}

func window(included []item) Window {
	var w Window
	if len(included) == 0 {
		return w
	}
	var total float64
	for _, it := range included {
		total += it.score
		if it.episodic == nil {
			continue
		}
		ts := it.episodic.Timestamp
		if w.StartTime.IsZero() || ts.Before(w.StartTime) {
			w.StartTime = ts
		}
		if ts.After(w.EndTime) {
			w.EndTime = ts
		}
	}
	w.RelevanceScore = total / float64(len(included))
	return w
}

// GetStats returns assembly statistics.
func (a *Assembler) GetStats() *Stats {
	n := a.assemblies.Load()
	s := &Stats{TotalAssemblies: n, Compressions: a.compressions.Load(), Degraded: a.degraded.Load()}
	if n > 0 {
		s.AverageTokens = float64(a.tokens.Load()) / float64(n)
	}
	return s
}
