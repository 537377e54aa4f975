package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/agentcore/store"
)

// SQLStore is a GraphStore on top of the relational store (sqlite or postgres).
// user_id and session_id are lifted into indexed columns.
type SQLStore struct {
	store *store.Store
}

// NewSQLStore wraps a migrated store.
func NewSQLStore(s *store.Store) *SQLStore {
	return &SQLStore{store: s}
}

func (s *SQLStore) CreateNode(ctx context.Context, label string, props map[string]any) (string, error) {
	if !ValidIdentifier(label) {
		return "", fmt.Errorf("invalid label %q", label)
	}
	id := stringParam(props, "id")
	if id == "" {
		id = uuid.NewString()
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode props: %w", err)
	}
	_, err = s.store.CreateGraphNode(ctx, &store.GraphNode{
		ID:        id,
		Label:     label,
		UserID:    stringParam(props, PropUserID),
		SessionID: stringParam(props, PropSessionID),
		Props:     string(encoded),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) CreateRelationship(ctx context.Context, fromID, toID, relType string) error {
	if !ValidIdentifier(relType) {
		return fmt.Errorf("invalid relationship type %q", relType)
	}
	for _, id := range []string{fromID, toID} {
		n, err := s.store.GetGraphNode(ctx, id)
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
	}
	return s.store.CreateGraphEdge(ctx, &store.GraphEdge{FromID: fromID, ToID: toID, RelType: relType})
}

func (s *SQLStore) Query(ctx context.Context, pattern Pattern, params map[string]any) ([]Node, error) {
	switch pattern {
	case PatternNodeByID:
		row, err := s.store.GetGraphNode(ctx, stringParam(params, "id"))
		if err != nil || row == nil {
			return nil, err
		}
		n, err := toNode(row)
		if err != nil {
			return nil, err
		}
		return []Node{n}, nil

	case PatternNodesByOwner:
		label := stringParam(params, "label")
		userID := stringParam(params, PropUserID)
		find := &store.FindGraphNode{Label: &label, UserID: &userID, Limit: intParam(params, "limit")}
		if sessionID := stringParam(params, PropSessionID); sessionID != "" {
			find.SessionID = &sessionID
		}
		rows, err := s.store.ListGraphNodes(ctx, find)
		if err != nil {
			return nil, err
		}
		return toNodes(rows)

	case PatternNeighbors:
		id := stringParam(params, "id")
		find := &store.FindGraphEdge{FromID: &id}
		if relType := stringParam(params, "type"); relType != "" {
			find.RelType = &relType
		}
		edges, err := s.store.ListGraphEdges(ctx, find)
		if err != nil {
			return nil, err
		}
		var out []Node
		for _, e := range edges {
			row, err := s.store.GetGraphNode(ctx, e.ToID)
			if err != nil {
				return nil, err
			}
			if row == nil {
				continue
			}
			n, err := toNode(row)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, pattern)
}

func (s *SQLStore) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	row, err := s.store.GetGraphNode(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n, err := toNode(row)
	if err != nil {
		return err
	}
	merged := maps.Clone(n.Props)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range props {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}
	return s.store.UpdateGraphNode(ctx, &store.UpdateGraphNode{ID: id, Props: string(encoded)})
}

func (s *SQLStore) DeleteNodes(ctx context.Context, label, userID, sessionID string) (int, error) {
	del := &store.DeleteGraphNode{Label: label, UserID: userID}
	if sessionID != "" {
		del.SessionID = &sessionID
	}
	n, err := s.store.DeleteGraphNodes(ctx, del)
	return int(n), err
}

func toNodes(rows []*store.GraphNode) ([]Node, error) {
	out := make([]Node, 0, len(rows))
	for _, row := range rows {
		n, err := toNode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toNode(row *store.GraphNode) (Node, error) {
	props := map[string]any{}
	if row.Props != "" {
		if err := json.Unmarshal([]byte(row.Props), &props); err != nil {
			return Node{}, fmt.Errorf("decode props of %s: %w", row.ID, err)
		}
	}
	return Node{
		ID:        row.ID,
		Label:     row.Label,
		Props:     props,
		Seq:       row.Seq,
		CreatedAt: time.Unix(row.CreatedTs, 0),
	}, nil
}

var _ GraphStore = (*SQLStore)(nil)
