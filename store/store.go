package store

import (
	"context"
)

// Store provides database access to graph, vector and session rows.
type Store struct {
	driver Driver
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// SupportsVectors reports whether the driver can store and search embeddings.
func (s *Store) SupportsVectors() bool {
	return s.driver.SupportsVectors()
}
