package router

import (
	"context"
	"sync"
)

// MockClassifier returns scripted intents and records requests.
type MockClassifier struct {
	mu       sync.Mutex
	intents  []*QueryIntent
	Default  *QueryIntent
	Requests []ClassifyRequest
}

// NewMockClassifier creates a mock that returns intents in order, then Default.
func NewMockClassifier(intents ...*QueryIntent) *MockClassifier {
	return &MockClassifier{
		intents: intents,
		Default: &QueryIntent{Type: IntentConversation, Confidence: 0.9, Source: SourceLLM},
	}
}

func (m *MockClassifier) Classify(_ context.Context, req ClassifyRequest) *QueryIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if len(m.intents) == 0 {
		c := *m.Default
		return &c
	}
	next := m.intents[0]
	m.intents = m.intents[1:]
	return next
}

var _ IntentClassifier = (*MockClassifier)(nil)
