// Package graph provides the property-graph store that backs episodic memory.
package graph

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Relationship types.
const (
	RelNext     = "NEXT"
	RelPrevious = "PREVIOUS"
	RelRelated  = "RELATED"
)

// Reserved property keys. They are indexed by every backend.
const (
	PropUserID    = "user_id"
	PropSessionID = "session_id"
)

// Pattern names a driver-agnostic query shape.
type Pattern string

const (
	// PatternNodeByID matches one node. Params: id.
	PatternNodeByID Pattern = "node_by_id"
	// PatternNodesByOwner matches nodes of a label owned by a user, optionally
	// scoped to a session. Params: label, user_id, session_id (optional),
	// limit (optional, keeps the most recent N). Results are oldest first.
	PatternNodesByOwner Pattern = "nodes_by_owner"
	// PatternNeighbors matches nodes reached from id over an outgoing
	// relationship of the given type. Params: id, type.
	PatternNeighbors Pattern = "neighbors"
)

// ErrNodeNotFound is returned when an id does not resolve.
var ErrNodeNotFound = errors.New("graph node not found")

// ErrUnknownPattern is returned for patterns a backend does not implement.
var ErrUnknownPattern = errors.New("unknown graph query pattern")

// Node is a labeled vertex with free-form properties.
// Seq increases with insertion order within a store.
type Node struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Props     map[string]any `json:"props"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"created_at"`
}

// GraphStore is a minimal property-graph contract.
type GraphStore interface {
	// CreateNode stores a node and returns its id. props["id"] is used when set.
	CreateNode(ctx context.Context, label string, props map[string]any) (string, error)

	// CreateRelationship adds a typed, directed edge.
	CreateRelationship(ctx context.Context, fromID, toID, relType string) error

	// Query runs a named pattern.
	Query(ctx context.Context, pattern Pattern, params map[string]any) ([]Node, error)

	// UpdateNode merges props into an existing node.
	UpdateNode(ctx context.Context, id string, props map[string]any) error

	// DeleteNodes removes nodes of a label owned by user (and session when non-empty)
	// together with their edges. Returns the number of nodes removed.
	DeleteNodes(ctx context.Context, label, userID, sessionID string) (int, error)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to use as a label or relationship type.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
