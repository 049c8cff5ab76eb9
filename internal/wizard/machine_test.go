package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/dshills/promptwizard/internal/repository/mock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchAll(t *testing.T, m *Machine, events ...Event) Snapshot {
	t.Helper()
	var snap Snapshot
	for _, ev := range events {
		var err error
		snap, err = m.Dispatch(context.Background(), ev)
		require.NoError(t, err, "event %s", ev.Kind())
	}
	return snap
}

var completeRun = []Event{
	Start{},
	SubmitGoal{Goal: "summarize articles"},
	SubmitAnswer{Text: "news site"},
	SubmitAnswer{Text: "under 100 words"},
	SubmitAnswer{Text: "bullet points"},
	SetVariable{Name: "USER_REQUEST", Value: "today"},
	SetVariable{Name: "ADDITIONAL_NOTES", Value: "none"},
	Advance{},
}

func TestMachineMirrorsEachStage(t *testing.T) {
	repo := mock.New()
	mirror := NewMirror(repo, MirrorOptions{}, logger.Nop())
	m := NewMachine(uuid.New(), mirror)
	ctx := context.Background()

	snap := dispatchAll(t, m, Start{}, SubmitGoal{Goal: "summarize articles"})
	require.NotNil(t, snap.SessionID)
	assert.Equal(t, 1, repo.Calls("CreateSession"))

	stored, err := repo.GetSession(ctx, *snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "summarize articles", stored.Goal)
	assert.Equal(t, domain.StepQuestions, stored.CurrentStep)

	dispatchAll(t, m, SubmitAnswer{Text: "news site"}, SubmitAnswer{Text: "r"})
	assert.Equal(t, 0, repo.Calls("UpdateSession"), "intermediate answers are not mirrored")

	snap = dispatchAll(t, m, SubmitAnswer{Text: "bullet points"})
	assert.Equal(t, 1, repo.Calls("UpdateSession"))
	stored, err = repo.GetSession(ctx, *snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepTemplate, stored.CurrentStep)
	require.NotNil(t, stored.Template)
	assert.Equal(t, snap.Template, *stored.Template)
	assert.Equal(t, snap.Variables, stored.Variables)
	assert.Equal(t, 3, stored.Answers.Len())

	dispatchAll(t, m,
		SetVariable{Name: "USER_REQUEST", Value: "today"},
		SetVariable{Name: "ADDITIONAL_NOTES", Value: "none"})
	assert.Equal(t, 1, repo.Calls("UpdateSession"), "variable edits are not mirrored until advance")

	snap = dispatchAll(t, m, Advance{})
	stored, err = repo.GetSession(ctx, *snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepTesting, stored.CurrentStep)
	assert.Equal(t, map[string]string{"USER_REQUEST": "today", "ADDITIONAL_NOTES": "none"}, stored.VariableValues)

	ref := domain.TestResultRef{PromptID: uuid.New(), ResultID: uuid.New(), Model: "gpt-4", Temperature: 0.7}
	dispatchAll(t, m, RecordResult{Ref: ref})
	stored, err = repo.GetSession(ctx, *snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []domain.TestResultRef{ref}, stored.TestResults)
}

func TestMachineProceedsWhenPersistenceFails(t *testing.T) {
	repo := mock.New()
	repo.SetFailing(true)
	m := NewMachine(uuid.New(), NewMirror(repo, MirrorOptions{}, logger.Nop()))

	snap := dispatchAll(t, m, completeRun...)
	assert.Equal(t, domain.StepTesting, snap.Step)
	assert.Nil(t, snap.SessionID)
	assert.Equal(t, 1, repo.Calls("CreateSession"))
	assert.Equal(t, 0, repo.Calls("UpdateSession"), "updates are skipped without a session id")
	assert.Contains(t, snap.ResolvedPrompt, "request: today")
}

func TestMachineSurvivesFailureAfterCreate(t *testing.T) {
	repo := mock.New()
	m := NewMachine(uuid.New(), NewMirror(repo, MirrorOptions{}, logger.Nop()))

	snap := dispatchAll(t, m, Start{}, SubmitGoal{Goal: "g"})
	require.NotNil(t, snap.SessionID)

	repo.SetFailing(true)
	snap = dispatchAll(t, m, SubmitAnswer{Text: "a"}, SubmitAnswer{Text: "b"}, SubmitAnswer{Text: "c"})
	assert.Equal(t, domain.StepTemplate, snap.Step)
	assert.Equal(t, 1, repo.Calls("UpdateSession"))
}

func TestMachineWithoutMirror(t *testing.T) {
	m := NewMachine(uuid.New(), nil)
	snap := dispatchAll(t, m, completeRun...)
	assert.Equal(t, domain.StepTesting, snap.Step)
	assert.Nil(t, snap.SessionID)
}

func TestMachineRejectionKeepsSnapshot(t *testing.T) {
	m := NewMachine(uuid.New(), nil)
	dispatchAll(t, m, Start{})

	snap, err := m.Dispatch(context.Background(), SubmitGoal{Goal: ""})
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, domain.StepGoal, snap.Step)
}

func TestSnapshotViews(t *testing.T) {
	m := NewMachine(uuid.New(), nil)

	snap := dispatchAll(t, m, Start{}, SubmitGoal{Goal: "g"})
	require.NotNil(t, snap.Question)
	assert.Equal(t, 1, snap.QuestionNumber)
	assert.Equal(t, 3, snap.QuestionCount)
	assert.Empty(t, snap.ResolvedPrompt)

	snap = dispatchAll(t, m, SubmitAnswer{Text: "a"}, SubmitAnswer{Text: "b"}, SubmitAnswer{Text: "c"})
	assert.Nil(t, snap.Question)
	assert.Equal(t, []string{"USER_REQUEST", "ADDITIONAL_NOTES"}, snap.Missing)

	// Mutating a snapshot must not reach the machine.
	snap.Answers.Set("context", "changed")
	snap.Values["USER_REQUEST"] = "x"
	state := m.State()
	v, _ := state.Answers.Get("context")
	assert.Equal(t, "a", v)
	assert.Empty(t, state.Values)
}

func TestMachineConcurrentDispatch(t *testing.T) {
	m := NewMachine(uuid.New(), nil)
	dispatchAll(t, m, Start{}, SubmitGoal{Goal: "g"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Dispatch(context.Background(), SubmitAnswer{Text: "x"}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted, "only three answers fit")
	assert.Equal(t, domain.StepTemplate, m.Snapshot().Step)
}

// flakyStore fails the first n calls of each kind.
type flakyStore struct {
	mu      sync.Mutex
	failFor int
	creates int
	updates int
	inner   SessionStore
	err     error
}

func (f *flakyStore) CreateSession(ctx context.Context, s *domain.Session) error {
	f.mu.Lock()
	f.creates++
	fail := f.creates <= f.failFor
	f.mu.Unlock()
	if fail {
		return f.err
	}
	return f.inner.CreateSession(ctx, s)
}

func (f *flakyStore) UpdateSession(ctx context.Context, id uuid.UUID, u domain.SessionUpdate) (*domain.Session, error) {
	f.mu.Lock()
	f.updates++
	fail := f.updates <= f.failFor
	f.mu.Unlock()
	if fail {
		return nil, f.err
	}
	return f.inner.UpdateSession(ctx, id, u)
}

func TestMirrorRetries(t *testing.T) {
	store := &flakyStore{failFor: 2, inner: mock.New(), err: errors.New("connection reset")}
	mirror := NewMirror(store, MirrorOptions{Attempts: 3, InitialInterval: time.Millisecond}, logger.Nop())

	id := mirror.Create(context.Background(), "g")
	require.NotNil(t, id)
	assert.Equal(t, 3, store.creates)
}

func TestMirrorGivesUpAfterAttempts(t *testing.T) {
	store := &flakyStore{failFor: 5, inner: mock.New(), err: errors.New("down")}
	mirror := NewMirror(store, MirrorOptions{Attempts: 2, InitialInterval: time.Millisecond}, logger.Nop())

	assert.Nil(t, mirror.Create(context.Background(), "g"))
	assert.Equal(t, 2, store.creates)
}

func TestMirrorDoesNotRetryNotFound(t *testing.T) {
	store := &flakyStore{failFor: 5, inner: mock.New(), err: domain.ErrNotFound}
	mirror := NewMirror(store, MirrorOptions{Attempts: 4, InitialInterval: time.Millisecond}, logger.Nop())

	id := uuid.New()
	step := domain.StepTesting
	mirror.Update(context.Background(), &id, domain.SessionUpdate{CurrentStep: &step})
	assert.Equal(t, 1, store.updates)
}

func TestMirrorSkips(t *testing.T) {
	store := &flakyStore{inner: mock.New()}
	mirror := NewMirror(store, MirrorOptions{}, logger.Nop())
	step := domain.StepTesting

	mirror.Update(context.Background(), nil, domain.SessionUpdate{CurrentStep: &step})
	id := uuid.New()
	mirror.Update(context.Background(), &id, domain.SessionUpdate{})
	assert.Equal(t, 0, store.updates)

	var none *Mirror
	assert.Nil(t, none.Create(context.Background(), "g"))
	none.Update(context.Background(), &id, domain.SessionUpdate{CurrentStep: &step})
}

func TestMirrorAttemptTimeout(t *testing.T) {
	store := &blockingStore{}
	mirror := NewMirror(store, MirrorOptions{Timeout: 10 * time.Millisecond}, logger.Nop())

	start := time.Now()
	assert.Nil(t, mirror.Create(context.Background(), "g"))
	assert.Less(t, time.Since(start), 5*time.Second)
}

type blockingStore struct{}

func (blockingStore) CreateSession(ctx context.Context, s *domain.Session) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) UpdateSession(ctx context.Context, id uuid.UUID, u domain.SessionUpdate) (*domain.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestMachineSnapshotAnswersOrder(t *testing.T) {
	m := NewMachine(uuid.New(), nil)
	snap := dispatchAll(t, m, Start{}, SubmitGoal{Goal: "g"}, SubmitAnswer{Text: "a"}, SubmitAnswer{Text: "b"}, SubmitAnswer{Text: "c"})
	assert.Equal(t, engine.Generate("g", engine.AnswersFrom("context", "a", "requirements", "b", "format", "c")), snap.Template)
}

// gatedStore blocks CreateSession until release is closed.
type gatedStore struct {
	entered chan struct{}
	release chan struct{}
	inner   SessionStore
}

func (g *gatedStore) CreateSession(ctx context.Context, s *domain.Session) error {
	close(g.entered)
	<-g.release
	return g.inner.CreateSession(ctx, s)
}

func (g *gatedStore) UpdateSession(ctx context.Context, id uuid.UUID, u domain.SessionUpdate) (*domain.Session, error) {
	return g.inner.UpdateSession(ctx, id, u)
}

func TestSnapshotDoesNotWaitForPersistence(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{}), inner: mock.New()}
	m := NewMachine(uuid.New(), NewMirror(store, MirrorOptions{}, logger.Nop()))
	dispatchAll(t, m, Start{})

	done := make(chan Snapshot, 1)
	go func() {
		snap, err := m.Dispatch(context.Background(), SubmitGoal{Goal: "summarize articles"})
		assert.NoError(t, err)
		done <- snap
	}()
	<-store.entered

	read := make(chan Snapshot, 1)
	go func() { read <- m.Snapshot() }()
	select {
	case snap := <-read:
		assert.Equal(t, domain.StepQuestions, snap.Step)
		assert.Nil(t, snap.SessionID)
	case <-time.After(5 * time.Second):
		t.Fatal("Snapshot blocked on persistence")
	}

	close(store.release)
	snap := <-done
	assert.Equal(t, domain.StepQuestions, snap.Step)
	require.NotNil(t, snap.SessionID)
	assert.Equal(t, *snap.SessionID, *m.SessionID())
}
