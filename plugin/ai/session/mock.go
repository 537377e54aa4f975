package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type mockEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MockStateService is an in-memory StateService for tests and the memory driver.
type MockStateService struct {
	mu      sync.RWMutex
	entries map[string]mockEntry

	// Err, when set, is returned by every operation.
	Err error
	// Now overrides the clock used for expiry.
	Now func() time.Time
}

// NewMockStateService creates an empty MockStateService.
func NewMockStateService() *MockStateService {
	return &MockStateService{entries: make(map[string]mockEntry)}
}

func (m *MockStateService) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MockStateService) Put(_ context.Context, key Key, kind string, value any, ttl time.Duration) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	e := mockEntry{payload: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey(key, kind)] = e
	return nil
}

func (m *MockStateService) Get(_ context.Context, key Key, kind string, dst any) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}

	m.mu.RLock()
	e, ok := m.entries[cacheKey(key, kind)]
	m.mu.RUnlock()
	if !ok || m.expired(e) {
		return false, nil
	}
	return true, json.Unmarshal(e.payload, dst)
}

func (m *MockStateService) Delete(_ context.Context, key Key, kind string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, cacheKey(key, kind))
	return nil
}

// PurgeExpired drops expired entries.
func (m *MockStateService) PurgeExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MockStateService) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MockStateService) expired(e mockEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
