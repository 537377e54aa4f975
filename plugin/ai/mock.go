package ai

import (
	"context"
	"strings"
	"sync"
)

// Responder produces a scripted reply for MockLLMService.
type Responder func(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

// MockLLMService is a scripted LLMService for tests.
// Replies are taken from the per-operation queue first, then from the responder.
type MockLLMService struct {
	mu        sync.Mutex
	queues    map[string][]mockReply
	responder Responder
	calls     []MockCall
}

// MockCall records one Chat invocation.
type MockCall struct {
	Operation string
	Messages  []Message
}

type mockReply struct {
	content string
	err     error
}

// NewMockLLMService creates a mock; responder may be nil.
func NewMockLLMService(responder Responder) *MockLLMService {
	return &MockLLMService{
		queues:    make(map[string][]mockReply),
		responder: responder,
	}
}

// Enqueue adds a reply for the given operation ("classify", "plan", ...).
func (m *MockLLMService) Enqueue(op, content string) *MockLLMService {
	return m.enqueue(op, mockReply{content: content})
}

// EnqueueError adds a failing reply for the given operation.
func (m *MockLLMService) EnqueueError(op string, err error) *MockLLMService {
	return m.enqueue(op, mockReply{err: err})
}

func (m *MockLLMService) enqueue(op string, r mockReply) *MockLLMService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[op] = append(m.queues[op], r)
	return m
}

// Chat implements LLMService.
func (m *MockLLMService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	o := ApplyChatOptions(opts...)

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Operation: o.Operation, Messages: messages})
	var reply *mockReply
	if q := m.queues[o.Operation]; len(q) > 0 {
		reply = &q[0]
		m.queues[o.Operation] = q[1:]
	}
	responder := m.responder
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reply != nil {
		return reply.content, reply.err
	}
	if responder != nil {
		return responder(ctx, messages, o)
	}
	return "", nil
}

// Calls returns the recorded calls.
func (m *MockLLMService) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many calls were made for op; empty op counts all.
func (m *MockLLMService) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if op == "" || c.Operation == op {
			n++
		}
	}
	return n
}

// LastUserMessage returns the content of the last user message of the last call for op.
func (m *MockLLMService) LastUserMessage(op string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].Operation != op {
			continue
		}
		msgs := m.calls[i].Messages
		for j := len(msgs) - 1; j >= 0; j-- {
			if msgs[j].Role == "user" {
				return msgs[j].Content
			}
		}
	}
	return ""
}

// JoinContent concatenates message contents, handy inside responders.
func JoinContent(messages []Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

var _ LLMService = (*MockLLMService)(nil)
