package session

import (
	"context"
	"encoding/json"
	"time"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai/cache"
	"github.com/hrygo/agentcore/store"
)

const cachePrefix = "session:"

// StateStore implements StateService on the SQL store with a read-through cache.
type StateStore struct {
	store *store.Store
	cache cache.CacheService
	// cacheTTL bounds how long a cached value may shadow the store.
	cacheTTL time.Duration
}

// NewStateStore creates a state service backed by s. cache may be nil.
func NewStateStore(s *store.Store, c cache.CacheService) *StateStore {
	return &StateStore{
		store:    s,
		cache:    c,
		cacheTTL: 30 * time.Minute,
	}
}

func (s *StateStore) Put(ctx context.Context, key Key, kind string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return aierrors.InvalidArgument("session state is not serializable: " + err.Error())
	}

	state := &store.SessionState{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Kind:      kind,
		Payload:   string(data),
		UpdatedTs: time.Now().Unix(),
	}
	if ttl > 0 {
		state.ExpiresTs = time.Now().Add(ttl).Unix()
	}
	if err := s.store.UpsertSessionState(ctx, state); err != nil {
		s.invalidate(ctx, key, kind)
		return aierrors.MemoryStoreError("session.put", err)
	}

	s.updateCache(ctx, key, kind, state)
	return nil
}

func (s *StateStore) Get(ctx context.Context, key Key, kind string, dst any) (bool, error) {
	state := s.loadFromCache(ctx, key, kind)
	if state == nil {
		var err error
		state, err = s.store.GetSessionState(ctx, &store.FindSessionState{
			UserID:    key.UserID,
			SessionID: key.SessionID,
			Kind:      kind,
		})
		if err != nil {
			return false, aierrors.MemoryStoreError("session.get", err)
		}
		if state == nil {
			return false, nil
		}
		s.updateCache(ctx, key, kind, state)
	}

	if err := json.Unmarshal([]byte(state.Payload), dst); err != nil {
		observability.LoggerFrom(ctx).Warn("failed to unmarshal session state",
			"user_id", key.UserID, "session_id", key.SessionID, "kind", kind, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *StateStore) Delete(ctx context.Context, key Key, kind string) error {
	s.invalidate(ctx, key, kind)
	err := s.store.DeleteSessionState(ctx, &store.FindSessionState{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Kind:      kind,
	})
	if err != nil {
		return aierrors.MemoryStoreError("session.delete", err)
	}
	return nil
}

// PurgeExpired removes expired rows from the backing store.
func (s *StateStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessionStates(ctx, time.Now().Unix())
}

func cacheKey(key Key, kind string) string {
	return cachePrefix + key.UserID + ":" + key.SessionID + ":" + kind
}

func (s *StateStore) updateCache(ctx context.Context, key Key, kind string, state *store.SessionState) {
	if s.cache == nil {
		return
	}

	ttl := s.cacheTTL
	if state.ExpiresTs > 0 {
		remaining := time.Until(time.Unix(state.ExpiresTs, 0))
		if remaining <= 0 {
			return
		}
		ttl = min(ttl, remaining)
	}

	data, err := json.Marshal(state)
	if err != nil {
		observability.LoggerFrom(ctx).Warn("failed to marshal session state for cache", "error", err)
		return
	}
	k := cacheKey(key, kind)
	if err := s.cache.Set(ctx, k, data, ttl); err != nil {
		observability.LoggerFrom(ctx).Warn("failed to update cache", "key", k, "error", err)
	}
}

func (s *StateStore) loadFromCache(ctx context.Context, key Key, kind string) *store.SessionState {
	if s.cache == nil {
		return nil
	}

	k := cacheKey(key, kind)
	data, ok := s.cache.Get(ctx, k)
	if !ok {
		return nil
	}

	var state store.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		observability.LoggerFrom(ctx).Warn("failed to unmarshal cached session state", "key", k, "error", err)
		return nil
	}
	if state.ExpiresTs > 0 && state.ExpiresTs <= time.Now().Unix() {
		return nil
	}
	return &state
}

func (s *StateStore) invalidate(ctx context.Context, key Key, kind string) {
	if s.cache == nil {
		return
	}
	// Ignore errors: a stale entry expires on its own TTL.
	_ = s.cache.Delete(ctx, cacheKey(key, kind))
}
