package exec

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MockResponse is the canned result of a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

type mockRule struct {
	name   string
	args   []string
	prefix bool
	resp   MockResponse
}

func (r mockRule) matches(name string, args []string) bool {
	if r.name != name {
		return false
	}
	if r.prefix {
		return len(args) >= len(r.args) && slices.Equal(args[:len(r.args)], r.args)
	}
	return slices.Equal(args, r.args)
}

// MockExecutor returns canned responses and records every call.
// Exact matches win over prefix matches; among prefix matches the most
// recently added wins.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []mockRule
	calls    []Command
	fallback CommandExecutor
}

// NewMockExecutor creates a mock. Unmatched commands go to fallback, or
// fail if fallback is nil.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{fallback: fallback}
}

// AddExactMatch registers a response for name with exactly args.
func (m *MockExecutor) AddExactMatch(name string, args []string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{name: name, args: args, resp: resp})
}

// AddPrefixMatch registers a response for name with args starting with prefix.
func (m *MockExecutor) AddPrefixMatch(name string, prefix []string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{name: name, args: prefix, prefix: true, resp: resp})
}

// GetCalls returns a copy of the recorded calls.
func (m *MockExecutor) GetCalls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *MockExecutor) lookup(c Command) (MockResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)

	for _, r := range m.rules {
		if !r.prefix && r.matches(c.Name, c.Args) {
			return r.resp, true
		}
	}
	for i := len(m.rules) - 1; i >= 0; i-- {
		if r := m.rules[i]; r.prefix && r.matches(c.Name, c.Args) {
			return r.resp, true
		}
	}
	return MockResponse{}, false
}

func (m *MockExecutor) RunCommand(ctx context.Context, c Command) ([]byte, []byte, error) {
	if resp, ok := m.lookup(c); ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}
	if m.fallback != nil {
		return m.fallback.RunCommand(ctx, c)
	}
	return nil, nil, fmt.Errorf("mock executor: no response for %q", c.String())
}

func (m *MockExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	return m.RunCommand(ctx, Command{Dir: dir, Name: name, Args: args})
}

func (m *MockExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	stdout, stderr, err := m.Run(ctx, dir, name, args...)
	if err != nil {
		return stdout, wrapStderr(err, stderr)
	}
	return stdout, nil
}

func (m *MockExecutor) CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	stdout, stderr, err := m.Run(ctx, dir, name, args...)
	return append(stdout, stderr...), err
}
