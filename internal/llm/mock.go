package llm

import (
	"context"
	"sync"
)

// MockClient is a mock LLM client for testing.
type MockClient struct {
	mu          sync.Mutex
	Response    string
	Error       error
	CallCount   int
	LastRequest *Request
}

// NewMockClient creates a new mock LLM client.
func NewMockClient(response string) *MockClient {
	return &MockClient{Response: response}
}

// Complete returns the mock response.
func (c *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount++
	c.LastRequest = &req

	if c.Error != nil {
		return nil, c.Error
	}
	return &Response{Content: c.Response, Model: "mock-model"}, nil
}

func (c *MockClient) Provider() Provider { return "mock" }
func (c *MockClient) Model() string      { return "mock-model" }

// MockFactory hands out a single MockClient for every available provider.
type MockFactory struct {
	Client    *MockClient
	Providers map[Provider]bool
	Created   []string
}

func (f *MockFactory) Available(provider Provider) bool {
	return f.Providers[provider]
}

func (f *MockFactory) CreateClient(provider Provider, model string) (Client, error) {
	if !f.Available(provider) {
		return nil, ErrProviderUnavailable
	}
	f.Created = append(f.Created, string(provider)+"/"+model)
	return f.Client, nil
}

// MockInvoker is an Invoker that echoes the model, or fails for models
// listed in Fail.
type MockInvoker struct {
	mu    sync.Mutex
	Fail  map[string]error
	Calls []Invocation
}

func (m *MockInvoker) Invoke(ctx context.Context, inv Invocation) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, inv)
	failure := m.Fail[inv.Model]
	m.mu.Unlock()

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return &Response{Content: "response from " + inv.Model, Model: inv.Model}, nil
}

// CallCount returns the number of invocations seen.
func (m *MockInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Ensure mocks implement their interfaces
var (
	_ Client        = (*MockClient)(nil)
	_ ClientFactory = (*MockFactory)(nil)
	_ Invoker       = (*MockInvoker)(nil)
)
