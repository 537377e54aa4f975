package graph

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process GraphStore.
type MemoryStore struct {
	mu    sync.RWMutex
	seq   int64
	nodes map[string]*Node
	edges map[string][]edge // keyed by source id
}

type edge struct {
	to      string
	relType string
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*Node),
		edges: make(map[string][]edge),
	}
}

func (s *MemoryStore) CreateNode(_ context.Context, label string, props map[string]any) (string, error) {
	if !ValidIdentifier(label) {
		return "", fmt.Errorf("invalid label %q", label)
	}
	id := stringParam(props, "id")
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; exists {
		return "", fmt.Errorf("node %s already exists", id)
	}
	s.seq++
	s.nodes[id] = &Node{
		ID:        id,
		Label:     label,
		Props:     maps.Clone(props),
		Seq:       s.seq,
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (s *MemoryStore) CreateRelationship(_ context.Context, fromID, toID, relType string) error {
	if !ValidIdentifier(relType) {
		return fmt.Errorf("invalid relationship type %q", relType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[fromID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, fromID)
	}
	if _, ok := s.nodes[toID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, toID)
	}
	for _, e := range s.edges[fromID] {
		if e.to == toID && e.relType == relType {
			return nil
		}
	}
	s.edges[fromID] = append(s.edges[fromID], edge{to: toID, relType: relType})
	return nil
}

func (s *MemoryStore) Query(_ context.Context, pattern Pattern, params map[string]any) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch pattern {
	case PatternNodeByID:
		n, ok := s.nodes[stringParam(params, "id")]
		if !ok {
			return nil, nil
		}
		return []Node{copyNode(n)}, nil

	case PatternNodesByOwner:
		label := stringParam(params, "label")
		userID := stringParam(params, PropUserID)
		sessionID := stringParam(params, PropSessionID)
		var out []Node
		for _, n := range s.nodes {
			if n.Label != label || stringParam(n.Props, PropUserID) != userID {
				continue
			}
			if sessionID != "" && stringParam(n.Props, PropSessionID) != sessionID {
				continue
			}
			out = append(out, copyNode(n))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		if limit := intParam(params, "limit"); limit > 0 && len(out) > limit {
			out = out[len(out)-limit:]
		}
		return out, nil

	case PatternNeighbors:
		relType := stringParam(params, "type")
		var out []Node
		for _, e := range s.edges[stringParam(params, "id")] {
			if relType != "" && e.relType != relType {
				continue
			}
			if n, ok := s.nodes[e.to]; ok {
				out = append(out, copyNode(n))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, pattern)
}

func (s *MemoryStore) UpdateNode(_ context.Context, id string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for k, v := range props {
		if k == "id" {
			continue
		}
		n.Props[k] = v
	}
	return nil
}

func (s *MemoryStore) DeleteNodes(_ context.Context, label, userID, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]bool)
	for id, n := range s.nodes {
		if n.Label != label || stringParam(n.Props, PropUserID) != userID {
			continue
		}
		if sessionID != "" && stringParam(n.Props, PropSessionID) != sessionID {
			continue
		}
		removed[id] = true
		delete(s.nodes, id)
		delete(s.edges, id)
	}
	if len(removed) == 0 {
		return 0, nil
	}
	for from, es := range s.edges {
		kept := es[:0]
		for _, e := range es {
			if !removed[e.to] {
				kept = append(kept, e)
			}
		}
		s.edges[from] = kept
	}
	return len(removed), nil
}

func copyNode(n *Node) Node {
	c := *n
	c.Props = maps.Clone(n.Props)
	return c
}

var _ GraphStore = (*MemoryStore)(nil)
