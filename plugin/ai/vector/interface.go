// Package vector provides the similarity store that backs semantic memory.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when a vector does not match the store dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is a stored vector with its metadata.
type Record struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// Match is one similarity search hit. Score is cosine similarity in [-1, 1].
type Match struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// VectorStore defines the vector retrieval contract.
type VectorStore interface {
	// Upsert stores or replaces a vector with metadata.
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error

	// Query returns up to topK records most similar to embedding, best first.
	// filter keeps only records whose metadata equals every filter entry.
	Query(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]Match, error)

	// Get returns a record by id, or nil when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records matching filter, up to limit (0 means all).
	List(ctx context.Context, filter map[string]any, limit int) ([]Record, error)
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// MatchesFilter reports whether metadata satisfies every filter entry.
// Values are compared by their formatted form so 1 and 1.0 agree after a JSON round trip.
func MatchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func checkDim(dim int, v []float32) error {
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, dim, len(v))
	}
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}
