package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/promptwizard/internal/catalog"
	"github.com/dshills/promptwizard/internal/config"
	"github.com/dshills/promptwizard/internal/llm"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/dshills/promptwizard/internal/playground"
	"github.com/dshills/promptwizard/internal/repository"
	"github.com/dshills/promptwizard/internal/repository/mock"
	"github.com/dshills/promptwizard/internal/repository/postgres"
	"github.com/dshills/promptwizard/internal/repository/sqlite"
	"github.com/dshills/promptwizard/internal/validator"
	"github.com/dshills/promptwizard/internal/wizard"
)

// app holds the wired services shared by the serve and sync-models commands.
type app struct {
	repo       repository.Repository
	catalog    *catalog.Catalog
	wizards    *wizard.Registry
	playground *playground.Service
	validator  *validator.Validator
	factory    *llm.Factory
	closers    []func() error
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (repository.Repository, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return mock.New(), nil
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DSN, postgres.Options{})
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.New(cfg.Path)
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	repo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s repository: %w", cfg.Storage.Driver, err)
	}
	a := &app{repo: repo, closers: []func() error{repo.Close}}

	var cache catalog.Cache
	if cfg.Cache.Enabled() {
		rc, err := catalog.NewRedisCache(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			log.Warn("model cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			cache = rc
			a.closers = append(a.closers, rc.Close)
		}
	}
	a.catalog = catalog.New(repo, cache, cfg.Cache.TTLDuration(), log)

	a.factory = llm.NewFactory(llm.OptionsFromEnv(cfg.LLM.OllamaHost), log)
	var invoker llm.Invoker
	if cfg.LLM.Simulated() {
		invoker = llm.NewSimulator(cfg.LLM.SimulatedDelayDuration())
	} else {
		invoker = llm.NewRouter(a.factory, log)
	}

	mirror := wizard.NewMirror(repo, wizard.MirrorOptions{
		Attempts:        cfg.Persistence.Attempts,
		InitialInterval: cfg.Persistence.InitialIntervalDuration(),
		Timeout:         cfg.Persistence.TimeoutDuration(),
	}, log)
	a.wizards = wizard.NewRegistry(mirror, repo, log)
	a.playground = playground.New(repo, invoker, a.catalog, playground.Options{
		DefaultModel: cfg.LLM.DefaultModel,
		MaxParallel:  cfg.LLM.MaxParallel,
	}, log)

	if a.validator, err = validator.New(); err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Info("services ready",
		"storage", cfg.Storage.Driver,
		"cache", cache != nil,
		"simulated", cfg.LLM.Simulated(),
		"providers", a.factory.Configured(),
	)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
