package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/store"
)

// SQLite is for development and tests. It has no vector column type.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at profile.DSN (":memory:" works too).
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	dsn := profile.DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

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
	return false
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS graph_node (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		props TEXT NOT NULL DEFAULT '{}',
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
			return errors.Wrap(err, "failed to apply schema")
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

func (*DB) UpsertVectorRecord(context.Context, *store.VectorRecord) error {
	return store.ErrVectorNotSupported
}

func (*DB) ListVectorRecords(context.Context, *store.FindVectorRecord) ([]*store.VectorRecord, error) {
	return nil, store.ErrVectorNotSupported
}

func (*DB) SearchVectorRecords(context.Context, *store.SearchVectorRecord) ([]*store.VectorMatch, error) {
	return nil, store.ErrVectorNotSupported
}

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(int) string {
	return "?"
}

func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
