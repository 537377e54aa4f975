package vector

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// bruteForceBelow is the size under which a filtered query scans every record
// instead of over-fetching from the graph.
const bruteForceBelow = 2048

// HNSWStore is an in-process approximate nearest neighbour VectorStore.
// The graph holds vectors; metadata lives in a side map keyed by id.
type HNSWStore struct {
	mu      sync.RWMutex
	dim     int
	graph   *hnsw.Graph[string]
	records map[string]*Record
}

// NewHNSWStore creates an empty HNSW-backed store of the given dimension.
func NewHNSWStore(dim int) *HNSWStore {
	return &HNSWStore{
		dim:     dim,
		graph:   hnsw.NewGraph[string](),
		records: make(map[string]*Record),
	}
}

func (s *HNSWStore) Upsert(_ context.Context, id string, embedding []float32, metadata map[string]any) error {
	if err := checkDim(s.dim, embedding); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vec := slices.Clone(embedding)
	if _, exists := s.records[id]; exists {
		s.graph.Delete(id)
	}
	s.graph.Add(hnsw.MakeNode(id, vec))
	s.records[id] = &Record{ID: id, Embedding: vec, Metadata: maps.Clone(metadata)}
	return nil
}

func (s *HNSWStore) Query(_ context.Context, embedding []float32, topK int, filter map[string]any) ([]Match, error) {
	if err := checkDim(s.dim, embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}

	var candidates []*Record
	if len(filter) > 0 && len(s.records) < bruteForceBelow {
		for _, r := range s.records {
			if MatchesFilter(r.Metadata, filter) {
				candidates = append(candidates, r)
			}
		}
	} else {
		// Over-fetch so filtering still leaves topK hits in the common case.
		k := topK
		if len(filter) > 0 {
			k = topK * 8
		}
		for _, node := range s.graph.Search(embedding, k) {
			if r, ok := s.records[node.Key]; ok && MatchesFilter(r.Metadata, filter) {
				candidates = append(candidates, r)
			}
		}
	}

	matches := make([]Match, 0, len(candidates))
	for _, r := range candidates {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    CosineSimilarity(embedding, r.Embedding),
			Metadata: maps.Clone(r.Metadata),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *HNSWStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &Record{ID: r.ID, Embedding: slices.Clone(r.Embedding), Metadata: maps.Clone(r.Metadata)}, nil
}

func (s *HNSWStore) List(_ context.Context, filter map[string]any, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id, r := range s.records {
		if MatchesFilter(r.Metadata, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r := s.records[id]
		out = append(out, Record{ID: r.ID, Embedding: slices.Clone(r.Embedding), Metadata: maps.Clone(r.Metadata)})
	}
	return out, nil
}

// Len returns the number of stored vectors.
func (s *HNSWStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ VectorStore = (*HNSWStore)(nil)
