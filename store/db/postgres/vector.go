package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/agentcore/store"
)

// UpsertVectorRecord inserts or replaces an embedding by id.
func (d *DB) UpsertVectorRecord(ctx context.Context, upsert *store.VectorRecord) error {
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = time.Now().Unix()
	}
	if upsert.Metadata == "" {
		upsert.Metadata = "{}"
	}
	stmt := `
		INSERT INTO semantic_vector (id, user_id, embedding, metadata, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_ts = EXCLUDED.updated_ts
	`
	_, err := d.db.ExecContext(ctx, stmt,
		upsert.ID,
		upsert.UserID,
		pgvector.NewVector(upsert.Embedding),
		upsert.Metadata,
		upsert.UpdatedTs,
	)
	return errors.Wrap(err, "failed to upsert semantic vector")
}

func (d *DB) ListVectorRecords(ctx context.Context, find *store.FindVectorRecord) ([]*store.VectorRecord, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	query := `
		SELECT id, user_id, embedding, metadata::text, updated_ts
		FROM semantic_vector
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id ASC`
	if find.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list semantic vectors")
	}
	defer rows.Close()

	list := []*store.VectorRecord{}
	for rows.Next() {
		record, err := scanVectorRecord(rows, nil)
		if err != nil {
			return nil, err
		}
		list = append(list, record)
	}
	return list, rows.Err()
}

// SearchVectorRecords ranks by cosine similarity. The <=> operator is cosine
// distance, so similarity is 1 - distance.
func (d *DB) SearchVectorRecords(ctx context.Context, search *store.SearchVectorRecord) ([]*store.VectorMatch, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = 10
	}
	vector := pgvector.NewVector(search.Embedding)

	where, args := []string{"1 = 1"}, []any{vector}
	if search.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *search.UserID)
	}
	query := `
		SELECT id, user_id, embedding, metadata::text, updated_ts,
			1 - (embedding <=> ` + placeholder(1) + `) AS similarity
		FROM semantic_vector
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> ` + placeholder(1) + `, id ASC
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []*store.VectorMatch{}
	for rows.Next() {
		var similarity float64
		record, err := scanVectorRecord(rows, &similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, &store.VectorMatch{Record: record, Similarity: float32(similarity)})
	}
	return results, rows.Err()
}

func scanVectorRecord(rows *sql.Rows, similarity *float64) (*store.VectorRecord, error) {
	var record store.VectorRecord
	var vector pgvector.Vector
	dest := []any{&record.ID, &record.UserID, &vector, &record.Metadata, &record.UpdatedTs}
	if similarity != nil {
		dest = append(dest, similarity)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "failed to scan semantic vector")
	}
	record.Embedding = vector.Slice()
	return &record, nil
}
