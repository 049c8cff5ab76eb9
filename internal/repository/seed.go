package repository

import (
	"time"

	"github.com/dshills/promptwizard/internal/domain"
)

// DefaultModels is the built-in model catalog. It seeds new databases and is
// the fallback when the catalog cannot be read.
func DefaultModels() []*domain.Model {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seeds := []struct {
		id, name, provider, description string
	}{
		{"claude-3-opus", "Claude 3 Opus", "Anthropic", "Excellent reasoning"},
		{"claude-3-sonnet", "Claude 3 Sonnet", "Anthropic", "Balanced performance"},
		{"gpt-3.5-turbo", "GPT-3.5 Turbo", "OpenAI", "Fast and efficient"},
		{"gpt-4", "GPT-4", "OpenAI", "Most capable model"},
	}

	models := make([]*domain.Model, 0, len(seeds))
	for _, s := range seeds {
		models = append(models, &domain.Model{
			ID:          s.id,
			Name:        s.name,
			Provider:    s.provider,
			Description: s.description,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return models
}
