package mock

import (
	"context"
	"testing"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession() *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Goal:           "Summarize articles",
		CurrentStep:    domain.StepQuestions,
		Answers:        engine.NewAnswers(),
		Variables:      []string{},
		VariableValues: map[string]string{},
		TestResults:    []domain.TestResultRef{},
	}
}

func TestCreateSessionConflict(t *testing.T) {
	ctx := context.Background()
	repo := New()
	s := newSession()

	require.NoError(t, repo.CreateSession(ctx, s))
	assert.ErrorIs(t, repo.CreateSession(ctx, s), domain.ErrConflict)
	assert.Equal(t, 2, repo.Calls("CreateSession"))
}

func TestFailingRepository(t *testing.T) {
	ctx := context.Background()
	repo := New()
	repo.SetFailing(true)

	assert.ErrorIs(t, repo.CreateSession(ctx, newSession()), ErrUnavailable)
	_, err := repo.ListActiveModels(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	repo.SetFailing(false)
	models, err := repo.ListActiveModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 4)
}

func TestGetSessionReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := New()
	s := newSession()
	require.NoError(t, repo.CreateSession(ctx, s))

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	got.Goal = "changed"

	again, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summarize articles", again.Goal)

	_, err = repo.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
