package ai

import (
	"context"
	"sync"
)

// MockClient is an in-memory Client for tests. Responses are returned in
// order; when exhausted, the last one repeats. A non-nil Err wins over
// responses.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     [][]Message
}

// NewMockClient creates a MockClient with the given canned responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

func (m *MockClient) Generate(_ context.Context, messages []Message, _ Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]Message, len(messages))
	copy(copied, messages)
	m.Calls = append(m.Calls, copied)

	if m.Err != nil {
		return "", Classify(m.Err)
	}
	if len(m.Responses) == 0 {
		return "", &ClassifiedError{Class: FailureServer}
	}

	idx := len(m.Calls) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of Generate calls so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ Client = (*MockClient)(nil)
