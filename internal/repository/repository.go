package repository

import (
	"context"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the interface for persistent storage.
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, update domain.SessionUpdate) (*domain.Session, error)

	// Prompts
	CreatePrompt(ctx context.Context, prompt *domain.Prompt) error
	GetPrompt(ctx context.Context, id uuid.UUID) (*domain.Prompt, error)

	// Results
	CreateResult(ctx context.Context, result *domain.Result) error
	ListResultsForPrompt(ctx context.Context, promptID uuid.UUID) ([]*domain.Result, error)

	// Models
	ListActiveModels(ctx context.Context) ([]*domain.Model, error)
	ListModels(ctx context.Context) ([]*domain.Model, error)
	UpsertModel(ctx context.Context, model *domain.Model) error

	// Lifecycle
	Close() error
}
