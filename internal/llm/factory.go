package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/dshills/promptwizard/internal/logger"
)

// ModelInfo describes a model discovered from a provider.
type ModelInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
}

// ModelLister is implemented by clients that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ClientFactory creates provider clients.
type ClientFactory interface {
	Available(provider Provider) bool
	CreateClient(provider Provider, model string) (Client, error)
}

// Options configures a Factory. Base URLs are empty for the public APIs.
type Options struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	OllamaHost       string
}

// OptionsFromEnv reads the conventional provider API key variables.
func OptionsFromEnv(ollamaHost string) Options {
	return Options{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		OllamaHost:   ollamaHost,
	}
}

// Factory creates LLM clients on demand.
type Factory struct {
	opts Options
	log  *logger.Logger
}

func NewFactory(opts Options, log *logger.Logger) *Factory {
	return &Factory{opts: opts, log: log.With("component", "llm.factory")}
}

// Available reports whether provider has the credentials it needs.
// Ollama needs only a host.
func (f *Factory) Available(provider Provider) bool {
	switch provider {
	case ProviderOpenAI:
		return f.opts.OpenAIKey != ""
	case ProviderAnthropic:
		return f.opts.AnthropicKey != ""
	case ProviderOllama:
		return f.opts.OllamaHost != ""
	default:
		return false
	}
}

// Configured returns the providers with credentials, in a stable order.
func (f *Factory) Configured() []Provider {
	var out []Provider
	for _, p := range []Provider{ProviderAnthropic, ProviderOpenAI, ProviderOllama} {
		if f.Available(p) {
			out = append(out, p)
		}
	}
	return out
}

// CreateClient creates a client for the specified provider and model.
func (f *Factory) CreateClient(provider Provider, model string) (Client, error) {
	if !f.Available(provider) {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(f.opts.AnthropicKey, model, f.opts.AnthropicBaseURL, f.log), nil
	case ProviderOpenAI:
		return NewOpenAIClient(f.opts.OpenAIKey, model, f.opts.OpenAIBaseURL, f.log), nil
	case ProviderOllama:
		return NewOllamaClient(f.opts.OllamaHost, model, f.log), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

// DiscoverModels lists models from every configured provider. A provider
// that fails is logged and skipped.
func (f *Factory) DiscoverModels(ctx context.Context) []ModelInfo {
	var models []ModelInfo
	for _, p := range f.Configured() {
		client, err := f.CreateClient(p, "")
		if err != nil {
			continue
		}
		lister, ok := client.(ModelLister)
		if !ok {
			continue
		}
		found, err := lister.ListModels(ctx)
		if err != nil {
			f.log.Warn("model discovery failed", "provider", p, "error", err)
			continue
		}
		f.log.Debug("discovered models", "provider", p, "count", len(found))
		models = append(models, found...)
	}
	return models
}

// Ensure Factory implements ClientFactory
var _ ClientFactory = (*Factory)(nil)
