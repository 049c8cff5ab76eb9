package wizard

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/google/uuid"
)

// SessionStore is the subset of the repository the mirror writes to.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	UpdateSession(ctx context.Context, id uuid.UUID, update domain.SessionUpdate) (*domain.Session, error)
}

// MirrorOptions tunes retries. Attempts of 1 disables retry.
type MirrorOptions struct {
	Attempts        int
	InitialInterval time.Duration
	Timeout         time.Duration
}

// Mirror writes wizard progress to a SessionStore. Every failure is logged
// and swallowed; callers never see persistence errors. A nil *Mirror is a
// valid mirror that persists nothing.
type Mirror struct {
	store SessionStore
	opts  MirrorOptions
	log   *logger.Logger
}

func NewMirror(store SessionStore, opts MirrorOptions, log *logger.Logger) *Mirror {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	return &Mirror{store: store, opts: opts, log: log.With("component", "wizard.mirror")}
}

// Create persists a new session for goal and returns its id, or nil when
// the session could not be stored.
func (m *Mirror) Create(ctx context.Context, goal string) *uuid.UUID {
	if m == nil {
		return nil
	}
	now := time.Now().UTC()
	session := &domain.Session{
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Goal:           goal,
		CurrentStep:    domain.StepQuestions,
		Answers:        engine.NewAnswers(),
		Variables:      []string{},
		VariableValues: map[string]string{},
		TestResults:    []domain.TestResultRef{},
	}

	err := m.retry(ctx, func(ctx context.Context) error {
		err := m.store.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		m.log.Warn("session create failed, continuing without persistence", "error", err)
		return nil
	}
	m.log.Debug("session created", "session_id", session.ID)
	return &session.ID
}

// Update applies update to the session. A nil id is skipped.
func (m *Mirror) Update(ctx context.Context, id *uuid.UUID, update domain.SessionUpdate) {
	if m == nil || id == nil || update.Empty() {
		return
	}
	err := m.retry(ctx, func(ctx context.Context) error {
		_, err := m.store.UpdateSession(ctx, *id, update)
		if errors.Is(err, domain.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		m.log.Warn("session update failed, continuing with local state", "session_id", *id, "error", err)
	}
}

func (m *Mirror) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	op := func() (struct{}, error) {
		attemptCtx := ctx
		if m.opts.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
			defer cancel()
		}
		return struct{}{}, fn(attemptCtx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialInterval

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(m.opts.Attempts)),
	)
	return err
}
