package providers

import (
	"context"
	"strings"
	"sync"
)

// MockProvider is a deterministic offline ProviderAdapter for tests.
// Responses are canned and keyed by prompt content; no network.
type MockProvider struct {
	mu sync.Mutex

	name string

	// rules are checked in registration order; the first rule whose
	// substring appears in the prompt wins.
	rules []mockRule

	// fallback is returned when no rule matches.
	fallback string

	// err, when set, fails every call until cleared.
	err error

	// errOnce fails only the next n calls, then clears.
	errOnce int

	calls []Request
}

type mockRule struct {
	substring string
	response  string
}

// NewMockProvider creates a mock with a default fallback response.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:     string(ProviderTypeMock),
		fallback: "mock response",
	}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string {
	return m.name
}

// Respond registers a canned response for prompts containing substring.
func (m *MockProvider) Respond(substring, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, response: response})
	return m
}

// Fallback sets the response used when no rule matches.
func (m *MockProvider) Fallback(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// FailWith makes every subsequent call return err.
func (m *MockProvider) FailWith(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.errOnce = 0
	return m
}

// FailNext makes the next n calls return err, then recover.
func (m *MockProvider) FailNext(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.errOnce = n
	return m
}

// Complete returns the canned response for the request's prompt.
func (m *MockProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, *req)

	if m.err != nil {
		err := m.err
		if m.errOnce > 0 {
			m.errOnce--
			if m.errOnce == 0 {
				m.err = nil
			}
		}
		return nil, err
	}

	text := m.fallback
	for _, rule := range m.rules {
		if strings.Contains(req.Prompt, rule.substring) {
			text = rule.response
			break
		}
	}

	return &Response{
		Text:  text,
		Model: "mock-model",
		Usage: Usage{
			InputTokens:  len(req.Prompt) / 4,
			OutputTokens: len(text) / 4,
		},
	}, nil
}

// CallCount returns the number of Complete calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded requests.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls, rules, and error injection.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.rules = nil
	m.err = nil
	m.errOnce = 0
}
