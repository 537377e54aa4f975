package store

import (
	"context"
)

// GraphNode is the row shape of a property-graph vertex.
// Props holds the JSON-encoded property map.
type GraphNode struct {
	ID        string
	Seq       int64
	Label     string
	UserID    string
	SessionID string
	Props     string
	CreatedTs int64
}

// FindGraphNode filters graph nodes. Results are ordered by Seq ascending;
// Limit > 0 keeps the newest Limit rows.
type FindGraphNode struct {
	ID        *string
	Label     *string
	UserID    *string
	SessionID *string
	Limit     int
}

// UpdateGraphNode replaces the props of a node.
type UpdateGraphNode struct {
	ID    string
	Props string
}

// DeleteGraphNode removes a user's nodes of one label, optionally within a session.
type DeleteGraphNode struct {
	Label     string
	UserID    string
	SessionID *string
}

// GraphEdge is a typed, directed relationship.
type GraphEdge struct {
	FromID    string
	ToID      string
	RelType   string
	CreatedTs int64
}

// FindGraphEdge filters edges by source and type.
type FindGraphEdge struct {
	FromID  *string
	RelType *string
}

func (s *Store) CreateGraphNode(ctx context.Context, create *GraphNode) (*GraphNode, error) {
	return s.driver.CreateGraphNode(ctx, create)
}

func (s *Store) ListGraphNodes(ctx context.Context, find *FindGraphNode) ([]*GraphNode, error) {
	return s.driver.ListGraphNodes(ctx, find)
}

func (s *Store) GetGraphNode(ctx context.Context, id string) (*GraphNode, error) {
	list, err := s.driver.ListGraphNodes(ctx, &FindGraphNode{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateGraphNode(ctx context.Context, update *UpdateGraphNode) error {
	return s.driver.UpdateGraphNode(ctx, update)
}

func (s *Store) DeleteGraphNodes(ctx context.Context, delete *DeleteGraphNode) (int64, error) {
	return s.driver.DeleteGraphNodes(ctx, delete)
}

func (s *Store) CreateGraphEdge(ctx context.Context, create *GraphEdge) error {
	return s.driver.CreateGraphEdge(ctx, create)
}

func (s *Store) ListGraphEdges(ctx context.Context, find *FindGraphEdge) ([]*GraphEdge, error) {
	return s.driver.ListGraphEdges(ctx, find)
}
