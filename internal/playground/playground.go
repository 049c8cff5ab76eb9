// Package playground runs the resolved prompt of a wizard in the testing
// step against one or more models and records the results.
package playground

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/dshills/promptwizard/internal/catalog"
	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/llm"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/dshills/promptwizard/internal/repository"
	"github.com/dshills/promptwizard/internal/wizard"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoModels is returned by Compare when no model ids are given.
var ErrNoModels = errors.New("no models selected")

// Options configures a Service.
type Options struct {
	DefaultModel string
	MaxParallel  int
}

// Service runs prompts. repo may be nil, in which case nothing is recorded.
type Service struct {
	repo    repository.Repository
	invoker llm.Invoker
	catalog *catalog.Catalog
	opts    Options
	log     *logger.Logger
}

func New(repo repository.Repository, invoker llm.Invoker, cat *catalog.Catalog, opts Options, log *logger.Logger) *Service {
	if opts.DefaultModel == "" {
		opts.DefaultModel = "gpt-4"
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	return &Service{repo: repo, invoker: invoker, catalog: cat, opts: opts, log: log.With("component", "playground")}
}

// DefaultModel is the model used when a request names none.
func (s *Service) DefaultModel() string { return s.opts.DefaultModel }

// RunRequest selects the model parameters. A nil Temperature selects the
// default of 0.7; an empty Model selects the configured default.
type RunRequest struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Run is the outcome of one model invocation.
type Run struct {
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	Temperature  float64    `json:"temperature"`
	Response     string     `json:"response,omitempty"`
	ResponseTime int64      `json:"response_time"`
	PromptID     *uuid.UUID `json:"prompt_id,omitempty"`
	ResultID     *uuid.UUID `json:"result_id,omitempty"`
	Error        string     `json:"error,omitempty"`

	err error
}

// Run invokes one model with the wizard's resolved prompt.
func (s *Service) Run(ctx context.Context, m *wizard.Machine, req RunRequest) (*Run, error) {
	snap, err := testingSnapshot(m)
	if err != nil {
		return nil, err
	}
	temperature, err := s.temperature(req.Temperature)
	if err != nil {
		return nil, err
	}

	run := s.invoke(ctx, snap.ResolvedPrompt, s.model(req.Model), temperature, req.MaxTokens)
	if run.err != nil {
		return nil, run.err
	}

	runs := []*Run{run}
	s.record(ctx, m, snap, runs)
	return run, nil
}

// Compare invokes every model concurrently, bounded by MaxParallel. A model
// that fails is reported in its Run; an error is returned only when every
// model failed.
func (s *Service) Compare(ctx context.Context, m *wizard.Machine, models []string, temp *float64, maxTokens int) ([]*Run, error) {
	snap, err := testingSnapshot(m)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	temperature, err := s.temperature(temp)
	if err != nil {
		return nil, err
	}

	runs := make([]*Run, len(models))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallel)
	for i, model := range models {
		g.Go(func() error {
			runs[i] = s.invoke(gctx, snap.ResolvedPrompt, strings.TrimSpace(model), temperature, maxTokens)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range runs {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) == len(runs) {
		return runs, errors.Join(errs...)
	}

	s.record(ctx, m, snap, runs)
	return runs, nil
}

// Results lists recorded results for a prompt, newest first.
func (s *Service) Results(ctx context.Context, promptID uuid.UUID) ([]*domain.Result, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: persistence disabled", domain.ErrNotFound)
	}
	if _, err := s.repo.GetPrompt(ctx, promptID); err != nil {
		return nil, err
	}
	return s.repo.ListResultsForPrompt(ctx, promptID)
}

// Recorded returns the stored results referenced by refs, in ref order.
// Results that cannot be read are skipped.
func (s *Service) Recorded(ctx context.Context, refs []domain.TestResultRef) []*domain.Result {
	if s.repo == nil || len(refs) == 0 {
		return nil
	}
	byPrompt := make(map[uuid.UUID]map[uuid.UUID]*domain.Result)
	out := make([]*domain.Result, 0, len(refs))
	for _, ref := range refs {
		results, ok := byPrompt[ref.PromptID]
		if !ok {
			list, err := s.repo.ListResultsForPrompt(ctx, ref.PromptID)
			if err != nil {
				s.log.Warn("reading results failed", "prompt_id", ref.PromptID, "error", err)
			}
			results = make(map[uuid.UUID]*domain.Result, len(list))
			for _, r := range list {
				results[r.ID] = r
			}
			byPrompt[ref.PromptID] = results
		}
		if r, ok := results[ref.ResultID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) invoke(ctx context.Context, prompt, model string, temperature float64, maxTokens int) *Run {
	run := &Run{Model: model, Temperature: temperature}
	fail := func(err error) *Run {
		run.err = err
		run.Error = err.Error()
		return run
	}

	info, err := s.catalog.Lookup(ctx, model)
	if err != nil {
		return fail(fmt.Errorf("%w: %s", llm.ErrUnknownModel, model))
	}
	run.Provider = info.Provider

	inv := llm.Invocation{
		Prompt:      prompt,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if p, err := llm.ParseProvider(info.Provider); err == nil {
		inv.Provider = p
	}
	if err := inv.Validate(); err != nil {
		return fail(err)
	}

	start := time.Now()
	resp, err := s.invoker.Invoke(ctx, inv)
	run.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		s.log.Warn("model invocation failed", "model", model, "error", err)
		return fail(fmt.Errorf("%w: %s: %w", domain.ErrInvocationFailed, model, err))
	}
	run.Response = resp.Content
	return run
}

// record stores one prompt plus a result per successful run, then appends
// the references to the wizard. Failures are logged and skipped.
func (s *Service) record(ctx context.Context, m *wizard.Machine, snap wizard.Snapshot, runs []*Run) {
	if s.repo == nil {
		return
	}
	now := time.Now().UTC()
	prompt := &domain.Prompt{
		ID:             uuid.New(),
		CreatedAt:      now,
		SessionID:      snap.SessionID,
		Template:       snap.Template,
		Variables:      maps.Clone(snap.Values),
		ResolvedPrompt: snap.ResolvedPrompt,
	}
	if err := s.repo.CreatePrompt(ctx, prompt); err != nil {
		s.log.Warn("recording prompt failed", "wizard_id", snap.ID, "error", err)
		return
	}

	for i, run := range runs {
		if run.err != nil {
			continue
		}
		result := &domain.Result{
			ID:           uuid.New(),
			CreatedAt:    now.Add(time.Duration(i) * time.Microsecond),
			PromptID:     prompt.ID,
			Model:        run.Model,
			Temperature:  run.Temperature,
			Response:     run.Response,
			ResponseTime: run.ResponseTime,
		}
		if err := s.repo.CreateResult(ctx, result); err != nil {
			s.log.Warn("recording result failed", "model", run.Model, "error", err)
			continue
		}
		promptID, resultID := prompt.ID, result.ID
		run.PromptID, run.ResultID = &promptID, &resultID

		ref := domain.TestResultRef{PromptID: promptID, ResultID: resultID, Model: run.Model, Temperature: run.Temperature}
		if _, err := m.Dispatch(ctx, wizard.RecordResult{Ref: ref}); err != nil {
			s.log.Warn("attaching result to wizard failed", "wizard_id", snap.ID, "error", err)
		}
	}
}

func (s *Service) model(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.opts.DefaultModel
}

func (s *Service) temperature(t *float64) (float64, error) {
	if t == nil {
		return llm.DefaultTemperature, nil
	}
	if *t < llm.MinTemperature || *t > llm.MaxTemperature {
		return 0, fmt.Errorf("%w: %v", llm.ErrInvalidTemperature, *t)
	}
	return *t, nil
}

func testingSnapshot(m *wizard.Machine) (wizard.Snapshot, error) {
	snap := m.Snapshot()
	if snap.Step != domain.StepTesting {
		return snap, fmt.Errorf("%w: runs require the testing step, wizard is in %s", wizard.ErrInvalidTransition, snap.Step)
	}
	return snap, nil
}
