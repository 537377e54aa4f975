package vector

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory VectorStore.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	records map[string]*Record
	order   []string // insertion order, for stable ties
}

// NewMemoryStore creates an empty store; dim 0 accepts any non-empty dimension.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{dim: dim, records: make(map[string]*Record)}
}

func (m *MemoryStore) Upsert(_ context.Context, id string, embedding []float32, metadata map[string]any) error {
	if err := checkDim(m.dim, embedding); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[id]; !exists {
		m.order = append(m.order, id)
	}
	m.records[id] = &Record{
		ID:        id,
		Embedding: slices.Clone(embedding),
		Metadata:  maps.Clone(metadata),
	}
	return nil
}

func (m *MemoryStore) Query(_ context.Context, embedding []float32, topK int, filter map[string]any) ([]Match, error) {
	if err := checkDim(m.dim, embedding); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.records))
	for _, id := range m.order {
		r := m.records[id]
		if !MatchesFilter(r.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    CosineSimilarity(embedding, r.Embedding),
			Metadata: maps.Clone(r.Metadata),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &Record{ID: r.ID, Embedding: slices.Clone(r.Embedding), Metadata: maps.Clone(r.Metadata)}, nil
}

func (m *MemoryStore) List(_ context.Context, filter map[string]any, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, id := range m.order {
		r := m.records[id]
		if !MatchesFilter(r.Metadata, filter) {
			continue
		}
		out = append(out, Record{ID: r.ID, Embedding: slices.Clone(r.Embedding), Metadata: maps.Clone(r.Metadata)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ VectorStore = (*MemoryStore)(nil)
