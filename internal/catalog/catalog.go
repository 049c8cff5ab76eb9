// Package catalog serves the list of selectable models. Reads go through an
// optional cache to the repository and fall back to a fixed list when the
// repository is unreachable.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/llm"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/dshills/promptwizard/internal/repository"
)

const (
	activeKey = "models:active"
	allKey    = "models:all"
)

// Catalog reads the model list.
type Catalog struct {
	repo  repository.Repository
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

// New creates a catalog. cache may be nil.
func New(repo repository.Repository, cache Cache, ttl time.Duration, log *logger.Logger) *Catalog {
	return &Catalog{repo: repo, cache: cache, ttl: ttl, log: log.With("component", "catalog")}
}

// ActiveModels returns active models ordered by name.
func (c *Catalog) ActiveModels(ctx context.Context) []*domain.Model {
	if models, ok := c.cached(ctx, activeKey); ok {
		return models
	}

	models, err := c.repo.ListActiveModels(ctx)
	if err != nil {
		c.log.Warn("listing active models failed, using fallback", "error", err)
		return Fallback()
	}
	c.store(ctx, activeKey, models)
	return models
}

// AllModels returns every model, active or not, ordered by name.
func (c *Catalog) AllModels(ctx context.Context) []*domain.Model {
	if models, ok := c.cached(ctx, allKey); ok {
		return models
	}

	models, err := c.repo.ListModels(ctx)
	if err != nil {
		c.log.Warn("listing models failed, using fallback", "error", err)
		return Fallback()
	}
	c.store(ctx, allKey, models)
	return models
}

// Lookup finds an active model by id.
func (c *Catalog) Lookup(ctx context.Context, id string) (*domain.Model, error) {
	for _, m := range c.ActiveModels(ctx) {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: model %q", domain.ErrNotFound, id)
}

// Sync upserts discovered provider models as active catalog entries and
// returns how many were written.
func (c *Catalog) Sync(ctx context.Context, discovered []llm.ModelInfo) (int, error) {
	now := time.Now().UTC()
	written := 0
	for _, info := range discovered {
		if info.ID == "" {
			continue
		}
		err := c.repo.UpsertModel(ctx, &domain.Model{
			ID:          info.ID,
			Name:        info.Name,
			Provider:    ProviderName(info.Provider),
			Description: "Discovered from " + ProviderName(info.Provider),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return written, fmt.Errorf("upsert model %s: %w", info.ID, err)
		}
		written++
	}
	c.Invalidate(ctx)
	return written, nil
}

// Invalidate drops cached lists.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, activeKey, allKey); err != nil {
		c.log.Warn("cache invalidate failed", "error", err)
	}
}

func (c *Catalog) cached(ctx context.Context, key string) ([]*domain.Model, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var models []*domain.Model
	if err := json.Unmarshal(raw, &models); err != nil {
		c.log.Warn("cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return models, true
}

func (c *Catalog) store(ctx context.Context, key string, models []*domain.Model) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(models)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// Fallback is the fixed model list served when the repository is unavailable.
func Fallback() []*domain.Model {
	return repository.DefaultModels()
}

// ProviderName returns the catalog display name for a provider.
func ProviderName(p llm.Provider) string {
	switch p {
	case llm.ProviderOpenAI:
		return "OpenAI"
	case llm.ProviderAnthropic:
		return "Anthropic"
	case llm.ProviderOllama:
		return "Ollama"
	default:
		s := string(p)
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}
