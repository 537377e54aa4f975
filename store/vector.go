package store

import (
	"context"
)

// VectorRecord is a stored embedding with JSON-encoded metadata.
type VectorRecord struct {
	ID        string
	UserID    string
	Embedding []float32
	Metadata  string
	UpdatedTs int64
}

// FindVectorRecord filters vector records.
type FindVectorRecord struct {
	ID     *string
	UserID *string
	Limit  int
}

// SearchVectorRecord is a nearest-neighbour query.
type SearchVectorRecord struct {
	Embedding []float32
	UserID    *string
	Limit     int
}

// VectorMatch is a search hit with cosine similarity.
type VectorMatch struct {
	Record     *VectorRecord
	Similarity float32
}

func (s *Store) UpsertVectorRecord(ctx context.Context, upsert *VectorRecord) error {
	return s.driver.UpsertVectorRecord(ctx, upsert)
}

func (s *Store) ListVectorRecords(ctx context.Context, find *FindVectorRecord) ([]*VectorRecord, error) {
	return s.driver.ListVectorRecords(ctx, find)
}

func (s *Store) SearchVectorRecords(ctx context.Context, search *SearchVectorRecord) ([]*VectorMatch, error) {
	return s.driver.SearchVectorRecords(ctx, search)
}
