package model

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/deskmesh/core"
)

// Request captures the normalized input of a single completion call.
// SystemPrompt is optional; zero Temperature / MaxTokens fall back to the
// adapter's defaults.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int64
}

// Info contains metadata about a backend implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Backend is the minimal interface the framework requires from a generative
// language service: a prompt plus optional instructions in, text out,
// asynchronously, possibly failing. Failures surface as *core.BackendError.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)

	// Info returns information about the backend implementation.
	Info() Info
}

// MockBackend is a lightweight in-memory Backend useful for tests & examples.
// Canned responses are matched by exact prompt first, then by substring.
type MockBackend struct {
	mu        sync.Mutex
	info      Info
	exact     map[string]string
	contains  []containsRule
	failWith  error
	callCount int
	prompts   []string
}

type containsRule struct {
	needle   string
	response string
}

// NewMockBackend constructs an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		info:  Info{Name: "mock", Provider: "mock"},
		exact: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an exact prompt.
func (m *MockBackend) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact[prompt] = response
}

// AddContainsResponse registers a canned completion returned whenever the
// prompt contains the given substring. Rules are checked in insertion order.
func (m *MockBackend) AddContainsResponse(needle, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contains = append(m.contains, containsRule{needle: needle, response: response})
}

// FailWith makes every subsequent Complete call return the given error.
func (m *MockBackend) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// CallCount returns the number of Complete invocations so far.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns a copy of all prompts seen so far, in order.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Complete implements Backend.
func (m *MockBackend) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.BackendError{Reason: "cancelled", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.prompts = append(m.prompts, req.Prompt)

	if m.failWith != nil {
		return "", &core.BackendError{Reason: "mock failure", Err: m.failWith}
	}
	if resp, ok := m.exact[req.Prompt]; ok {
		return resp, nil
	}
	for _, rule := range m.contains {
		if strings.Contains(req.Prompt, rule.needle) {
			return rule.response, nil
		}
	}

	return "Mock response to: " + req.Prompt, nil
}

// Info implements Backend.
func (m *MockBackend) Info() Info { return m.info }
