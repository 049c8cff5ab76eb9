package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider represents an LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderSimulated Provider = "simulated"
)

// ParseProvider maps a catalog provider name ("OpenAI", "Anthropic") to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderSimulated:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
}

// Temperature bounds accepted by every provider.
const (
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Request represents a chat completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Response represents a completion response.
type Response struct {
	Content string
	Model   string
}

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() Provider
	Model() string
}

// Invocation is a single prompt run against one model.
type Invocation struct {
	Prompt      string
	Model       string
	Provider    Provider
	Temperature float64
	MaxTokens   int
}

// Validate checks the invocation parameters.
func (inv Invocation) Validate() error {
	if strings.TrimSpace(inv.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if strings.TrimSpace(inv.Model) == "" {
		return ErrUnknownModel
	}
	if inv.Temperature < MinTemperature || inv.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, inv.Temperature)
	}
	if inv.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative: %d", inv.MaxTokens)
	}
	return nil
}

// Invoker runs a resolved prompt against a model.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (*Response, error)
}

var (
	// ErrInvalidResponse indicates the LLM returned an invalid response.
	ErrInvalidResponse = errors.New("invalid LLM response")

	// ErrRateLimit indicates rate limiting was hit.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrProviderError indicates a provider-specific error.
	ErrProviderError = errors.New("provider error")

	ErrInvalidTemperature  = errors.New("temperature must be between 0 and 2")
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrUnknownModel        = errors.New("unknown model")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderUnavailable = errors.New("provider not configured")
)
