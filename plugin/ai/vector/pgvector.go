package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/hrygo/agentcore/store"
)

// PGVectorStore keeps vectors in postgres (pgvector). user_id in metadata is
// pushed down to SQL; the remaining filter keys are matched after the scan.
type PGVectorStore struct {
	store *store.Store
	dim   int
}

// NewPGVectorStore requires a store whose driver supports vectors.
func NewPGVectorStore(s *store.Store, dim int) (*PGVectorStore, error) {
	if !s.SupportsVectors() {
		return nil, store.ErrVectorNotSupported
	}
	return &PGVectorStore{store: s, dim: dim}, nil
}

func (p *PGVectorStore) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	if err := checkDim(p.dim, embedding); err != nil {
		return err
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return p.store.UpsertVectorRecord(ctx, &store.VectorRecord{
		ID:        id,
		UserID:    userOf(metadata),
		Embedding: embedding,
		Metadata:  string(encoded),
	})
}

func (p *PGVectorStore) Query(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]Match, error) {
	if err := checkDim(p.dim, embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	rest, userID := splitFilter(filter)
	limit := topK
	if len(rest) > 0 {
		limit = topK * 4
	}

	hits, err := p.store.SearchVectorRecords(ctx, &store.SearchVectorRecord{Embedding: embedding, UserID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, topK)
	for _, hit := range hits {
		metadata, err := decodeMetadata(hit.Record)
		if err != nil {
			return nil, err
		}
		if !MatchesFilter(metadata, rest) {
			continue
		}
		out = append(out, Match{ID: hit.Record.ID, Score: hit.Similarity, Metadata: metadata})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (p *PGVectorStore) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := p.store.ListVectorRecords(ctx, &store.FindVectorRecord{ID: &id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	metadata, err := decodeMetadata(rows[0])
	if err != nil {
		return nil, err
	}
	return &Record{ID: rows[0].ID, Embedding: rows[0].Embedding, Metadata: metadata}, nil
}

func (p *PGVectorStore) List(ctx context.Context, filter map[string]any, limit int) ([]Record, error) {
	rest, userID := splitFilter(filter)
	rows, err := p.store.ListVectorRecords(ctx, &store.FindVectorRecord{UserID: userID})
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, row := range rows {
		metadata, err := decodeMetadata(row)
		if err != nil {
			return nil, err
		}
		if !MatchesFilter(metadata, rest) {
			continue
		}
		out = append(out, Record{ID: row.ID, Embedding: row.Embedding, Metadata: metadata})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func splitFilter(filter map[string]any) (map[string]any, *string) {
	rest := maps.Clone(filter)
	if v, ok := rest["user_id"].(string); ok {
		delete(rest, "user_id")
		return rest, &v
	}
	return rest, nil
}

func userOf(metadata map[string]any) string {
	if v, ok := metadata["user_id"].(string); ok {
		return v
	}
	return ""
}

func decodeMetadata(row *store.VectorRecord) (map[string]any, error) {
	metadata := map[string]any{}
	if row.Metadata == "" {
		return metadata, nil
	}
	if err := json.Unmarshal([]byte(row.Metadata), &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", row.ID, err)
	}
	return metadata, nil
}

var _ VectorStore = (*PGVectorStore)(nil)
