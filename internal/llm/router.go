package llm

import (
	"context"
	"fmt"

	"github.com/dshills/promptwizard/internal/logger"
)

// Router is an Invoker that dispatches each invocation to a real provider
// client built by its factory.
type Router struct {
	factory ClientFactory
	log     *logger.Logger
}

func NewRouter(factory ClientFactory, log *logger.Logger) *Router {
	return &Router{factory: factory, log: log.With("component", "llm.router")}
}

// Invoke sends the prompt as a single user message.
func (r *Router) Invoke(ctx context.Context, inv Invocation) (*Response, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if inv.Provider == "" {
		return nil, fmt.Errorf("%w: no provider for model %s", ErrUnsupportedProvider, inv.Model)
	}

	client, err := r.factory.CreateClient(inv.Provider, inv.Model)
	if err != nil {
		return nil, err
	}

	maxTokens := inv.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	resp, err := client.Complete(ctx, Request{
		Messages:    []Message{{Role: "user", Content: inv.Prompt}},
		Temperature: inv.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		r.log.Warn("invocation failed", "provider", inv.Provider, "model", inv.Model, "error", err)
		return nil, err
	}
	return resp, nil
}

var _ Invoker = (*Router)(nil)
