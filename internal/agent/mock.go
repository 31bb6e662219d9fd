package agent

import (
	"context"
	"fmt"
	"sync"
)

// MockRunner is a Runner that returns canned results instead of calling a
// real transport, used in tests and in mock mode when no credentials are
// configured.
type MockRunner struct {
	mu       sync.Mutex
	forced   *Result
	forcedBy map[string]*Result // keyed by exact prompt match, checked before forced
	calls    []MockCall
}

// MockCall records one RunAgent invocation for assertions in tests.
type MockCall struct {
	Prompt string
	Model  string
	Cwd    string
}

// NewMockRunner builds a MockRunner that echoes a generic acknowledgement
// until a response is forced.
func NewMockRunner() *MockRunner {
	return &MockRunner{forcedBy: make(map[string]*Result)}
}

// SetResponse forces every subsequent call to return result, regardless of
// prompt.
func (m *MockRunner) SetResponse(result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = result
}

// SetResponseFor forces calls whose prompt exactly matches prompt to return
// result; takes precedence over SetResponse.
func (m *MockRunner) SetResponseFor(prompt string, result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedBy[prompt] = result
}

// Calls returns every RunAgent invocation recorded so far.
func (m *MockRunner) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// RunAgent implements Runner.
func (m *MockRunner) RunAgent(ctx context.Context, prompt, model, cwd string) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Model: model, Cwd: cwd})
	if r, ok := m.forcedBy[prompt]; ok {
		m.mu.Unlock()
		return r, nil
	}
	if m.forced != nil {
		r := m.forced
		m.mu.Unlock()
		return r, nil
	}
	m.mu.Unlock()

	return &Result{
		Output:       fmt.Sprintf("mock response to a %d-character prompt at tier %s", len(prompt), model),
		Signal:       SignalNone,
		InputTokens:  int64(len(prompt) / 4),
		OutputTokens: 32,
		DurationMs:   10,
	}, nil
}
