package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrVectorNotSupported is returned by drivers without a vector column type.
var ErrVectorNotSupported = errors.New("vector storage is not supported by this driver (requires PostgreSQL with pgvector)")

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate applies the schema idempotently.
	Migrate(ctx context.Context) error
	SupportsVectors() bool

	// GraphNode model related methods.
	CreateGraphNode(ctx context.Context, create *GraphNode) (*GraphNode, error)
	ListGraphNodes(ctx context.Context, find *FindGraphNode) ([]*GraphNode, error)
	UpdateGraphNode(ctx context.Context, update *UpdateGraphNode) error
	DeleteGraphNodes(ctx context.Context, delete *DeleteGraphNode) (int64, error)

	// GraphEdge model related methods.
	CreateGraphEdge(ctx context.Context, create *GraphEdge) error
	ListGraphEdges(ctx context.Context, find *FindGraphEdge) ([]*GraphEdge, error)

	// VectorRecord model related methods.
	UpsertVectorRecord(ctx context.Context, upsert *VectorRecord) error
	ListVectorRecords(ctx context.Context, find *FindVectorRecord) ([]*VectorRecord, error)
	SearchVectorRecords(ctx context.Context, search *SearchVectorRecord) ([]*VectorMatch, error)

	// SessionState model related methods.
	UpsertSessionState(ctx context.Context, upsert *SessionState) error
	GetSessionState(ctx context.Context, find *FindSessionState) (*SessionState, error)
	DeleteSessionState(ctx context.Context, delete *FindSessionState) error
	DeleteExpiredSessionStates(ctx context.Context, now int64) (int64, error)
}
