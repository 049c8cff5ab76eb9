package wizard

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/google/uuid"
)

// SessionLoader reads persisted sessions for resume.
type SessionLoader interface {
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
}

// Registry holds the live machines keyed by wizard id.
type Registry struct {
	mu       sync.RWMutex
	machines map[uuid.UUID]*Machine
	mirror   *Mirror
	sessions SessionLoader
	log      *logger.Logger
}

// NewRegistry creates a registry. mirror and sessions may be nil when
// persistence is disabled.
func NewRegistry(mirror *Mirror, sessions SessionLoader, log *logger.Logger) *Registry {
	return &Registry{
		machines: make(map[uuid.UUID]*Machine),
		mirror:   mirror,
		sessions: sessions,
		log:      log.With("component", "wizard.registry"),
	}
}

// New creates and registers a machine in the landing step.
func (r *Registry) New() *Machine {
	m := NewMachine(uuid.New(), r.mirror)
	r.mu.Lock()
	r.machines[m.ID()] = m
	r.mu.Unlock()
	r.log.Debug("wizard created", "wizard_id", m.ID())
	return m
}

// Get returns the machine for id.
func (r *Registry) Get(id uuid.UUID) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	if !ok {
		return nil, fmt.Errorf("%w: wizard %s", domain.ErrNotFound, id)
	}
	return m, nil
}

// Remove drops a machine. It reports whether one was registered.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.machines[id]
	delete(r.machines, id)
	return ok
}

// Len returns the number of live machines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

// Resume loads a persisted session and registers a machine restored from it.
func (r *Registry) Resume(ctx context.Context, sessionID uuid.UUID) (*Machine, error) {
	if r.sessions == nil {
		return nil, fmt.Errorf("%w: persistence disabled", domain.ErrNotFound)
	}
	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	m, err := Restore(uuid.New(), session, r.mirror)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.machines[m.ID()] = m
	r.mu.Unlock()
	r.log.Info("wizard resumed", "wizard_id", m.ID(), "session_id", sessionID, "step", session.CurrentStep)
	return m, nil
}
