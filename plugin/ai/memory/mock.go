package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockEpisodicManager is an in-memory EpisodicManager for tests.
// Err, when set, is returned by every call.
type MockEpisodicManager struct {
	mu       sync.Mutex
	Err      error
	Memories []EpisodicMemory
}

func (m *MockEpisodicManager) Store(_ context.Context, event EpisodicMemory) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if event.ID == "" {
		event.ID = fmt.Sprintf("ep-%d", len(m.Memories)+1)
	}
	m.Memories = append(m.Memories, event)
	return event.ID, nil
}

func (m *MockEpisodicManager) Get(_ context.Context, id string) (*EpisodicMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for i := range m.Memories {
		if m.Memories[i].ID == id {
			c := m.Memories[i]
			return &c, nil
		}
	}
	return nil, ErrMemoryNotFound
}

func (m *MockEpisodicManager) Search(_ context.Context, q EpisodicQuery) ([]ScoredEpisode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []ScoredEpisode
	for _, ep := range m.Memories {
		if ep.UserID != q.UserID || (q.SessionID != "" && ep.SessionID != q.SessionID) {
			continue
		}
		if q.Query != "" && !strings.Contains(strings.ToLower(ep.Content), strings.ToLower(q.Query)) {
			continue
		}
		out = append(out, ScoredEpisode{Memory: ep, Score: ep.Metadata.Importance})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MockEpisodicManager) GetContext(_ context.Context, userID, sessionID string, limit int) ([]EpisodicMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []EpisodicMemory
	for _, ep := range m.Memories {
		if ep.UserID == userID && (sessionID == "" || ep.SessionID == sessionID) {
			out = append(out, ep)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockEpisodicManager) UpdateMetadata(_ context.Context, id string, metadata EpisodicMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i := range m.Memories {
		if m.Memories[i].ID == id {
			m.Memories[i].Metadata = metadata
			return nil
		}
	}
	return ErrMemoryNotFound
}

func (m *MockEpisodicManager) Link(context.Context, string, string) error {
	return m.Err
}

func (m *MockEpisodicManager) Clear(_ context.Context, userID, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	kept := m.Memories[:0]
	removed := 0
	for _, ep := range m.Memories {
		if ep.UserID == userID && (sessionID == "" || ep.SessionID == sessionID) {
			removed++
			continue
		}
		kept = append(kept, ep)
	}
	m.Memories = kept
	return removed, nil
}

// MockSemanticManager returns fixed search results for tests.
type MockSemanticManager struct {
	mu       sync.Mutex
	Err      error
	Results  []ScoredConcept
	Stored   []SemanticMemory
	Extracts int
}

func (m *MockSemanticManager) Store(_ context.Context, c SemanticMemory) (StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return StoreResult{}, m.Err
	}
	m.Stored = append(m.Stored, c)
	return StoreResult{ID: c.Concept}, nil
}

func (m *MockSemanticManager) Get(context.Context, string) (*SemanticMemory, error) {
	return nil, ErrMemoryNotFound
}

func (m *MockSemanticManager) Search(_ context.Context, _, _ string, _ float64, limit int) ([]ScoredConcept, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := append([]ScoredConcept(nil), m.Results...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSemanticManager) List(context.Context, string) ([]SemanticMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SemanticMemory(nil), m.Stored...), m.Err
}

func (m *MockSemanticManager) Link(context.Context, string, string) error {
	return m.Err
}

func (m *MockSemanticManager) ExtractFromEpisodic(context.Context, string, string) (*ExtractionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Extracts++
	return &ExtractionReport{}, m.Err
}

var (
	_ EpisodicManager = (*MockEpisodicManager)(nil)
	_ SemanticManager = (*MockSemanticManager)(nil)
)
