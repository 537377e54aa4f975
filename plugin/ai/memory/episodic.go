package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/graph"
)

// Episodic is the graph-backed EpisodicManager.
type Episodic struct {
	graph graph.GraphStore
	cfg   Config
	now   func() time.Time
}

// NewEpisodic creates an episodic manager over a graph store.
func NewEpisodic(g graph.GraphStore, cfg Config) *Episodic {
	return &Episodic{graph: g, cfg: cfg.withDefaults(), now: time.Now}
}

func (e *Episodic) Store(ctx context.Context, event EpisodicMemory) (string, error) {
	if event.UserID == "" {
		return "", aierrors.InvalidArgument("episodic memory requires a user id")
	}
	if strings.TrimSpace(event.Content) == "" {
		return "", aierrors.InvalidArgument("episodic memory requires content")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if event.Metadata.Source == "" {
		event.Metadata.Source = SourceUser
	}
	event.Metadata.Importance = clamp01(event.Metadata.Importance)

	prev, err := e.latest(ctx, event.UserID, event.SessionID)
	if err != nil {
		return "", err
	}
	props := episodeProps(event)
	if prev != "" {
		props["previous_id"] = prev
	}

	id, err := e.graph.CreateNode(ctx, LabelEpisode, props)
	if err != nil {
		return "", aierrors.MemoryStoreError("store episode", err)
	}
	if prev != "" {
		if err := e.graph.CreateRelationship(ctx, prev, id, graph.RelNext); err != nil {
			return "", aierrors.MemoryStoreError("link next", err)
		}
		if err := e.graph.CreateRelationship(ctx, id, prev, graph.RelPrevious); err != nil {
			return "", aierrors.MemoryStoreError("link previous", err)
		}
		if err := e.graph.UpdateNode(ctx, prev, map[string]any{"next_id": id}); err != nil {
			return "", aierrors.MemoryStoreError("update previous", err)
		}
	}
	return id, nil
}

// latest returns the id of the newest episode in the session, or "".
func (e *Episodic) latest(ctx context.Context, userID, sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}
	nodes, err := e.graph.Query(ctx, graph.PatternNodesByOwner, map[string]any{
		"label":             LabelEpisode,
		graph.PropUserID:    userID,
		graph.PropSessionID: sessionID,
		"limit":             1,
	})
	if err != nil {
		return "", aierrors.MemoryStoreError("find previous episode", err)
	}
	if len(nodes) == 0 {
		return "", nil
	}
	return nodes[0].ID, nil
}

func (e *Episodic) Get(ctx context.Context, id string) (*EpisodicMemory, error) {
	nodes, err := e.graph.Query(ctx, graph.PatternNodeByID, map[string]any{"id": id})
	if err != nil {
		return nil, aierrors.MemoryStoreError("get episode", err)
	}
	if len(nodes) == 0 || nodes[0].Label != LabelEpisode {
		return nil, ErrMemoryNotFound
	}
	m := episodeFromNode(nodes[0])

	related, err := e.graph.Query(ctx, graph.PatternNeighbors, map[string]any{"id": id, "type": graph.RelRelated})
	if err != nil {
		return nil, aierrors.MemoryStoreError("get related episodes", err)
	}
	for _, n := range related {
		m.Relationships.Related = append(m.Relationships.Related, n.ID)
	}
	return &m, nil
}

func (e *Episodic) Search(ctx context.Context, q EpisodicQuery) ([]ScoredEpisode, error) {
	if q.UserID == "" {
		return nil, aierrors.InvalidArgument("search requires a user id")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	params := map[string]any{"label": LabelEpisode, graph.PropUserID: q.UserID}
	if q.SessionID != "" {
		params[graph.PropSessionID] = q.SessionID
	}
	nodes, err := e.graph.Query(ctx, graph.PatternNodesByOwner, params)
	if err != nil {
		return nil, aierrors.MemoryStoreError("search episodes", err)
	}

	type candidate struct {
		memory EpisodicMemory
		seq    int64
	}
	candidates := make([]candidate, 0, len(nodes))
	var newest time.Time
	for _, n := range nodes {
		m := episodeFromNode(n)
		if !matchesQuery(m, q) {
			continue
		}
		if m.Timestamp.After(newest) {
			newest = m.Timestamp
		}
		candidates = append(candidates, candidate{memory: m, seq: n.Seq})
	}

	queryTokens := ai.Tokenize(q.Query)
	scored := make([]ScoredEpisode, len(candidates))
	seqs := make([]int64, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredEpisode{Memory: c.memory, Score: e.cfg.ScoreEpisode(c.memory, newest, queryTokens)}
		seqs[i] = c.seq
	}

	idx := make([]int, len(scored))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if scored[idx[a]].Score != scored[idx[b]].Score {
			return scored[idx[a]].Score > scored[idx[b]].Score
		}
		return seqs[idx[a]] < seqs[idx[b]]
	})

	out := make([]ScoredEpisode, 0, min(limit, len(idx)))
	for _, i := range idx {
		if len(out) == limit {
			break
		}
		out = append(out, scored[i])
	}
	return out, nil
}

func (e *Episodic) GetContext(ctx context.Context, userID, sessionID string, limit int) ([]EpisodicMemory, error) {
	if limit <= 0 || limit > e.cfg.ContextCap {
		limit = e.cfg.ContextCap
	}
	params := map[string]any{"label": LabelEpisode, graph.PropUserID: userID, "limit": limit}
	if sessionID != "" {
		params[graph.PropSessionID] = sessionID
	}
	nodes, err := e.graph.Query(ctx, graph.PatternNodesByOwner, params)
	if err != nil {
		return nil, aierrors.MemoryStoreError("get context", err)
	}
	out := make([]EpisodicMemory, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, episodeFromNode(n))
	}
	return out, nil
}

func (e *Episodic) UpdateMetadata(ctx context.Context, id string, metadata EpisodicMetadata) error {
	metadata.Importance = clamp01(metadata.Importance)
	err := e.graph.UpdateNode(ctx, id, map[string]any{
		"source":     metadata.Source,
		"importance": metadata.Importance,
		"tags":       nonNilStrings(metadata.Tags),
		"location":   metadata.Location,
	})
	if err != nil {
		if isNotFound(err) {
			return ErrMemoryNotFound
		}
		return aierrors.MemoryStoreError("update episode metadata", err)
	}
	return nil
}

func (e *Episodic) Link(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return aierrors.InvalidArgument("cannot relate a memory to itself")
	}
	if err := e.graph.CreateRelationship(ctx, fromID, toID, graph.RelRelated); err != nil {
		return aierrors.MemoryStoreError("link related", err)
	}
	if err := e.graph.CreateRelationship(ctx, toID, fromID, graph.RelRelated); err != nil {
		return aierrors.MemoryStoreError("link related", err)
	}
	return nil
}

func (e *Episodic) Clear(ctx context.Context, userID, sessionID string) (int, error) {
	if userID == "" {
		return 0, aierrors.InvalidArgument("clear requires a user id")
	}
	n, err := e.graph.DeleteNodes(ctx, LabelEpisode, userID, sessionID)
	if err != nil {
		return 0, aierrors.MemoryStoreError("clear episodes", err)
	}
	observability.LoggerFrom(ctx).Info("episodic memory cleared", "user_id", userID, "session_id", sessionID, "count", n)
	return n, nil
}

func episodeProps(m EpisodicMemory) map[string]any {
	props := map[string]any{
		"id":                m.ID,
		graph.PropUserID:    m.UserID,
		graph.PropSessionID: m.SessionID,
		"timestamp":         formatTime(m.Timestamp),
		"content":           m.Content,
		"source":            m.Metadata.Source,
		"importance":        m.Metadata.Importance,
		"tags":              nonNilStrings(m.Metadata.Tags),
		"location":          m.Metadata.Location,
	}
	if len(m.Context) > 0 {
		props["context"] = m.Context
	}
	return props
}

func episodeFromNode(n graph.Node) EpisodicMemory {
	p := n.Props
	return EpisodicMemory{
		ID:        n.ID,
		UserID:    stringProp(p, graph.PropUserID),
		SessionID: stringProp(p, graph.PropSessionID),
		Timestamp: timeProp(p, "timestamp"),
		Content:   stringProp(p, "content"),
		Context:   mapProp(p, "context"),
		Metadata: EpisodicMetadata{
			Source:     stringProp(p, "source"),
			Importance: floatProp(p, "importance"),
			Tags:       stringsProp(p, "tags"),
			Location:   stringProp(p, "location"),
		},
		Relationships: EpisodicLinks{
			Previous: stringProp(p, "previous_id"),
			Next:     stringProp(p, "next_id"),
		},
	}
}

func matchesQuery(m EpisodicMemory, q EpisodicQuery) bool {
	if !q.From.IsZero() && m.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && m.Timestamp.After(q.To) {
		return false
	}
	if m.Metadata.Importance < q.MinImportance {
		return false
	}
	for _, tag := range q.Tags {
		if !slices.Contains(m.Metadata.Tags, tag) {
			return false
		}
	}
	return true
}

// ScoreEpisode is the composite relevance
// w1·recency + w2·importance + w3·keywordOverlap. Recency decays with the
// configured half-life and is measured from newest, not from now, so repeated
// searches rank identically.
func (c Config) ScoreEpisode(m EpisodicMemory, newest time.Time, queryTokens []string) float64 {
	halfLife := c.RecencyHalfLife
	if halfLife <= 0 {
		halfLife = DefaultConfig().RecencyHalfLife
	}
	age := max(newest.Sub(m.Timestamp).Seconds(), 0)
	recency := math.Exp(-math.Ln2 * age / halfLife.Seconds())
	return c.RecencyWeight*recency +
		c.ImportanceWeight*m.Metadata.Importance +
		c.KeywordWeight*keywordOverlap(queryTokens, m.Content)
}

// keywordOverlap is the fraction of query tokens present in content.
func keywordOverlap(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := ai.Tokenize(content)
	set := make(map[string]bool, len(contentTokens))
	for _, t := range contentTokens {
		set[t] = true
	}
	hits := 0
	for _, t := range queryTokens {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isNotFound(err error) bool {
	return errors.Is(err, graph.ErrNodeNotFound)
}

var _ EpisodicManager = (*Episodic)(nil)
