package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/graph"
	"github.com/hrygo/agentcore/plugin/ai/vector"
)

// Semantic is the vector-backed SemanticManager.
type Semantic struct {
	vectors  vector.VectorStore
	embedder ai.EmbeddingService
	cfg      Config
	now      func() time.Time

	// Extraction collaborators; optional.
	llm      ai.LLMService
	episodic EpisodicManager
	graph    graph.GraphStore

	// mu serializes the dedup check and the write that follows it.
	mu sync.Mutex
}

// SemanticOption configures optional collaborators.
type SemanticOption func(*Semantic)

// WithExtraction enables ExtractFromEpisodic. Runs are recorded in g.
func WithExtraction(llm ai.LLMService, episodic EpisodicManager, g graph.GraphStore) SemanticOption {
	return func(s *Semantic) {
		s.llm = llm
		s.episodic = episodic
		s.graph = g
	}
}

// NewSemantic creates a semantic manager.
func NewSemantic(vectors vector.VectorStore, embedder ai.EmbeddingService, cfg Config, opts ...SemanticOption) *Semantic {
	s := &Semantic{vectors: vectors, embedder: embedder, cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Semantic) Store(ctx context.Context, c SemanticMemory) (StoreResult, error) {
	if c.UserID == "" {
		return StoreResult{}, aierrors.InvalidArgument("semantic memory requires a user id")
	}
	c.Concept = strings.TrimSpace(c.Concept)
	if c.Concept == "" {
		return StoreResult{}, aierrors.InvalidArgument("semantic memory requires a concept")
	}

	embedding := c.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = s.embedder.Embed(ctx, conceptText(c))
		if err != nil {
			return StoreResult{}, aierrors.MemoryStoreError("embed concept", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	neighbours, err := s.vectors.Query(ctx, embedding, 5, map[string]any{"user_id": c.UserID})
	if err != nil {
		return StoreResult{}, aierrors.MemoryStoreError("find duplicate concept", err)
	}
	if len(neighbours) > 0 && float64(neighbours[0].Score) >= s.cfg.DuplicateThreshold {
		return s.merge(ctx, neighbours, c)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Embedding = embedding
	c.Metadata.Confidence = clamp01(c.Metadata.Confidence)
	c.Metadata.AccessCount = 1
	c.Metadata.LastAccessed = s.now()
	if c.Metadata.Category == "" {
		c.Metadata.Category = "other"
	}
	s.addSimilar(&c, neighbours)
	if err := s.vectors.Upsert(ctx, c.ID, embedding, conceptMetadata(c)); err != nil {
		return StoreResult{}, aierrors.MemoryStoreError("store concept", err)
	}
	return StoreResult{ID: c.ID}, nil
}

// addSimilar records the neighbours above the search threshold as similar to c.
func (s *Semantic) addSimilar(c *SemanticMemory, neighbours []vector.Match) {
	for _, n := range neighbours {
		if n.ID == c.ID || float64(n.Score) < s.cfg.SearchThreshold {
			continue
		}
		if !slices.Contains(c.Relationships.Similar, n.ID) {
			c.Relationships.Similar = append(c.Relationships.Similar, n.ID)
		}
	}
}

// merge folds an incoming concept into its nearest neighbour, which is a
// near-duplicate. The remaining neighbours become similar to the merged concept.
func (s *Semantic) merge(ctx context.Context, neighbours []vector.Match, incoming SemanticMemory) (StoreResult, error) {
	existing, err := s.get(ctx, neighbours[0].ID)
	if err != nil {
		return StoreResult{}, err
	}
	s.addSimilar(existing, neighbours)
	existing.Metadata.AccessCount++
	existing.Metadata.LastAccessed = s.now()
	existing.Metadata.Confidence = max(existing.Metadata.Confidence, clamp01(incoming.Metadata.Confidence))
	if existing.Description == "" {
		existing.Description = incoming.Description
	}
	if err := s.vectors.Upsert(ctx, existing.ID, existing.Embedding, conceptMetadata(*existing)); err != nil {
		return StoreResult{}, aierrors.MemoryStoreError("merge concept", err)
	}
	return StoreResult{ID: existing.ID, Merged: true}, nil
}

func (s *Semantic) Get(ctx context.Context, id string) (*SemanticMemory, error) {
	return s.get(ctx, id)
}

func (s *Semantic) get(ctx context.Context, id string) (*SemanticMemory, error) {
	rec, err := s.vectors.Get(ctx, id)
	if err != nil {
		return nil, aierrors.MemoryStoreError("get concept", err)
	}
	if rec == nil {
		return nil, ErrMemoryNotFound
	}
	c := conceptFromRecord(rec.ID, rec.Embedding, rec.Metadata)
	return &c, nil
}

func (s *Semantic) Search(ctx context.Context, userID, query string, threshold float64, limit int) ([]ScoredConcept, error) {
	if userID == "" {
		return nil, aierrors.InvalidArgument("search requires a user id")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = s.cfg.SearchThreshold
	}
	if limit <= 0 {
		limit = 10
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, aierrors.MemoryStoreError("embed query", err)
	}
	matches, err := s.vectors.Query(ctx, embedding, limit*2, map[string]any{"user_id": userID})
	if err != nil {
		return nil, aierrors.MemoryStoreError("search concepts", err)
	}

	out := make([]ScoredConcept, 0, len(matches))
	for _, m := range matches {
		if float64(m.Score) < threshold {
			continue
		}
		out = append(out, ScoredConcept{
			Memory:     conceptFromRecord(m.ID, nil, m.Metadata),
			Similarity: float64(m.Score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].Memory.Metadata.Confidence != out[j].Memory.Metadata.Confidence {
			return out[i].Memory.Metadata.Confidence > out[j].Memory.Metadata.Confidence
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Semantic) List(ctx context.Context, userID string) ([]SemanticMemory, error) {
	records, err := s.vectors.List(ctx, map[string]any{"user_id": userID}, 0)
	if err != nil {
		return nil, aierrors.MemoryStoreError("list concepts", err)
	}
	out := make([]SemanticMemory, 0, len(records))
	for _, r := range records {
		out = append(out, conceptFromRecord(r.ID, r.Embedding, r.Metadata))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Concept != out[j].Concept {
			return out[i].Concept < out[j].Concept
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Semantic) Link(ctx context.Context, parentID, childID string) error {
	if parentID == childID {
		return aierrors.InvalidArgument("a concept cannot be its own parent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.get(ctx, parentID)
	if err != nil {
		return err
	}
	child, err := s.get(ctx, childID)
	if err != nil {
		return err
	}
	child.Relationships.Parent = parentID
	if !slices.Contains(parent.Relationships.Children, childID) {
		parent.Relationships.Children = append(parent.Relationships.Children, childID)
	}
	if err := s.vectors.Upsert(ctx, child.ID, child.Embedding, conceptMetadata(*child)); err != nil {
		return aierrors.MemoryStoreError("link concept", err)
	}
	if err := s.vectors.Upsert(ctx, parent.ID, parent.Embedding, conceptMetadata(*parent)); err != nil {
		return aierrors.MemoryStoreError("link concept", err)
	}
	return nil
}

func conceptText(c SemanticMemory) string {
	if c.Description == "" {
		return c.Concept
	}
	return c.Concept + ": " + c.Description
}

func conceptMetadata(c SemanticMemory) map[string]any {
	return map[string]any{
		"user_id":       c.UserID,
		"concept":       c.Concept,
		"description":   c.Description,
		"category":      c.Metadata.Category,
		"confidence":    c.Metadata.Confidence,
		"source":        c.Metadata.Source,
		"last_accessed": formatTime(c.Metadata.LastAccessed),
		"access_count":  c.Metadata.AccessCount,
		"similar":       nonNilStrings(c.Relationships.Similar),
		"parent":        c.Relationships.Parent,
		"children":      nonNilStrings(c.Relationships.Children),
	}
}

func conceptFromRecord(id string, embedding []float32, m map[string]any) SemanticMemory {
	return SemanticMemory{
		ID:          id,
		UserID:      stringProp(m, "user_id"),
		Concept:     stringProp(m, "concept"),
		Description: stringProp(m, "description"),
		Embedding:   embedding,
		Metadata: SemanticMetadata{
			Category:     stringProp(m, "category"),
			Confidence:   floatProp(m, "confidence"),
			Source:       stringProp(m, "source"),
			LastAccessed: timeProp(m, "last_accessed"),
			AccessCount:  intProp(m, "access_count"),
		},
		Relationships: SemanticLinks{
			Similar:  stringsProp(m, "similar"),
			Parent:   stringProp(m, "parent"),
			Children: stringsProp(m, "children"),
		},
	}
}

var _ SemanticManager = (*Semantic)(nil)
