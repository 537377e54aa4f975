package store

import (
	"context"
)

// SessionState is a keyed, expiring blob of per-session state
// (pending confirmations, the prior turn, turn counters).
type SessionState struct {
	UserID    string
	SessionID string
	Kind      string
	Payload   string
	// ExpiresTs is a unix timestamp; 0 means no expiry.
	ExpiresTs int64
	UpdatedTs int64
}

// FindSessionState identifies one state row.
type FindSessionState struct {
	UserID    string
	SessionID string
	Kind      string
}

func (s *Store) UpsertSessionState(ctx context.Context, upsert *SessionState) error {
	return s.driver.UpsertSessionState(ctx, upsert)
}

func (s *Store) GetSessionState(ctx context.Context, find *FindSessionState) (*SessionState, error) {
	return s.driver.GetSessionState(ctx, find)
}

func (s *Store) DeleteSessionState(ctx context.Context, delete *FindSessionState) error {
	return s.driver.DeleteSessionState(ctx, delete)
}

// DeleteExpiredSessionStates removes rows whose expiry is at or before now.
func (s *Store) DeleteExpiredSessionStates(ctx context.Context, now int64) (int64, error) {
	return s.driver.DeleteExpiredSessionStates(ctx, now)
}
