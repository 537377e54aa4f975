package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agentcore/store"
)

func (d *DB) UpsertSessionState(ctx context.Context, upsert *store.SessionState) error {
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO session_state (user_id, session_id, kind, payload, expires_ts, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (user_id, session_id, kind)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			expires_ts = EXCLUDED.expires_ts,
			updated_ts = EXCLUDED.updated_ts
	`
	_, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID, upsert.SessionID, upsert.Kind, upsert.Payload, upsert.ExpiresTs, upsert.UpdatedTs)
	return errors.Wrap(err, "failed to upsert session state")
}

// GetSessionState returns nil when the row is missing or expired.
func (d *DB) GetSessionState(ctx context.Context, find *store.FindSessionState) (*store.SessionState, error) {
	stmt := `
		SELECT user_id, session_id, kind, payload, expires_ts, updated_ts
		FROM session_state
		WHERE user_id = ` + placeholder(1) + ` AND session_id = ` + placeholder(2) + ` AND kind = ` + placeholder(3)
	state := &store.SessionState{}
	err := d.db.QueryRowContext(ctx, stmt, find.UserID, find.SessionID, find.Kind).
		Scan(&state.UserID, &state.SessionID, &state.Kind, &state.Payload, &state.ExpiresTs, &state.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session state")
	}
	if state.ExpiresTs > 0 && state.ExpiresTs <= time.Now().Unix() {
		return nil, d.DeleteSessionState(ctx, find)
	}
	return state, nil
}

func (d *DB) DeleteSessionState(ctx context.Context, delete *store.FindSessionState) error {
	stmt := `DELETE FROM session_state WHERE user_id = ` + placeholder(1) +
		` AND session_id = ` + placeholder(2) + ` AND kind = ` + placeholder(3)
	_, err := d.db.ExecContext(ctx, stmt, delete.UserID, delete.SessionID, delete.Kind)
	return errors.Wrap(err, "failed to delete session state")
}

func (d *DB) DeleteExpiredSessionStates(ctx context.Context, now int64) (int64, error) {
	stmt := `DELETE FROM session_state WHERE expires_ts > 0 AND expires_ts <= ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired session states")
	}
	return result.RowsAffected()
}
