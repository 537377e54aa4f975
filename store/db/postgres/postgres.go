package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/store"
)

// PostgreSQL is the production driver and the only one with vector support
// (pgvector extension).
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping database", "error", err)
		return nil, errors.Wrap(err, "failed to ping database")
	}

	var driver store.Driver = &DB{
		db:      db,
		profile: profile,
	}
	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (*DB) SupportsVectors() bool {
	return true
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS graph_node (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		label TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		props JSONB NOT NULL DEFAULT '{}',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_node_owner ON graph_node (label, user_id, session_id, seq)`,
	`CREATE TABLE IF NOT EXISTS graph_edge (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		rel_type TEXT NOT NULL,
		created_ts BIGINT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel_type)
	)`,
	`CREATE TABLE IF NOT EXISTS semantic_vector (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		embedding vector NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_semantic_vector_user ON semantic_vector (user_id)`,
	`CREATE TABLE IF NOT EXISTS session_state (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		expires_ts BIGINT NOT NULL DEFAULT 0,
		updated_ts BIGINT NOT NULL,
		PRIMARY KEY (user_id, session_id, kind)
	)`,
}

func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start migration")
	}
	defer tx.Rollback()
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to apply schema statement: %s", firstLine(stmt))
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
