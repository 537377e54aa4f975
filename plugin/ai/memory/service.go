package memory

import (
	"context"
	"log/slog"

	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/graph"
	"github.com/hrygo/agentcore/plugin/ai/vector"
)

// Service bundles the two memory layers.
// - Episodic: graph store, time-ordered events per session
// - Semantic: vector store, de-duplicated concepts per user
type Service struct {
	Episodic EpisodicManager
	Semantic SemanticManager
}

// NewService wires both managers over the given stores. llm may be nil,
// in which case extraction is disabled.
func NewService(g graph.GraphStore, v vector.VectorStore, embedder ai.EmbeddingService, llm ai.LLMService, cfg Config) *Service {
	episodic := NewEpisodic(g, cfg)
	var opts []SemanticOption
	if llm != nil {
		opts = append(opts, WithExtraction(llm, episodic, g))
	} else {
		slog.Warn("memory service initialized without an LLM (concept extraction disabled)")
	}
	return &Service{
		Episodic: episodic,
		Semantic: NewSemantic(v, embedder, cfg, opts...),
	}
}

// Stats summarizes what is stored for a user.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	episodes, err := s.Episodic.Search(ctx, EpisodicQuery{UserID: userID, Limit: 1 << 30})
	if err != nil {
		return nil, err
	}
	concepts, err := s.Semantic.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		UserID:             userID,
		EpisodicCount:      len(episodes),
		SemanticCount:      len(concepts),
		ConceptsByCategory: map[string]int{},
	}
	sessions := map[string]bool{}
	var importance float64
	for _, ep := range episodes {
		sessions[ep.Memory.SessionID] = true
		importance += ep.Memory.Metadata.Importance
	}
	stats.SessionCount = len(sessions)
	if len(episodes) > 0 {
		stats.AverageImportance = importance / float64(len(episodes))
	}
	for _, c := range concepts {
		stats.ConceptsByCategory[c.Metadata.Category]++
	}

	if sem, ok := s.Semantic.(*Semantic); ok {
		if _, ranAt, err := sem.lastExtraction(ctx, userID); err == nil {
			stats.LastExtraction = ranAt
		}
	}
	return stats, nil
}
