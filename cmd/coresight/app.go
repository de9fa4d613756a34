package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/analytics"
	"github.com/coresight/coresight/internal/config"
	"github.com/coresight/coresight/internal/cost"
	"github.com/coresight/coresight/internal/dedup"
	"github.com/coresight/coresight/internal/embedding"
	"github.com/coresight/coresight/internal/jobs"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/pipeline"
	"github.com/coresight/coresight/internal/profile"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/storage/memory"
	"github.com/coresight/coresight/internal/storage/sqlite"
)

// App holds the wired engines for one CLI invocation.
type App struct {
	Config config.Config
	Store  storage.Storage

	Embedder  *embedding.Gateway
	Reasoner  *ai.Gateway
	Completer *ai.AnthropicCompleter // nil unless reasoning uses Anthropic
	Costs     *cost.Tracker

	Jobs       *jobs.Service
	Matcher    *matching.Engine
	Resolver   *dedup.Resolver
	Profiles   *profile.Engine
	Analytics  *analytics.Service
	Dispatcher *pipeline.Dispatcher
}

// OpenApp opens storage and builds every engine from cfg. When the
// database path was not given explicitly, an existing .coresight/*.db in
// the working directory is preferred over the configured default.
func OpenApp(ctx context.Context, cfg config.Config, explicitPath bool, logger *zap.Logger) (*App, error) {
	store, err := openStore(ctx, cfg.Storage, explicitPath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store}
	if err := a.wire(ctx, logger); err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, sc storage.Config, explicitPath bool) (storage.Storage, error) {
	switch sc.Backend {
	case storage.BackendMemory:
		return memory.New(), nil
	case storage.BackendSQLite:
		path := sc.Path
		if !explicitPath && path == storage.DefaultDatabasePath {
			if found, err := storage.DiscoverDatabase(); err == nil {
				path = found
			}
		}
		store, err := sqlite.New(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", path, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

func (a *App) wire(ctx context.Context, logger *zap.Logger) error {
	cfg := a.Config

	provider, err := embedding.NewProvider(ctx, cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	// Recent vectors are served from memory; the store cache survives restarts
	cache := embedding.TieredCache{
		embedding.NewMemoryCache(cfg.Embedding.CacheSize),
		embedding.NewStoreCache(a.Store, cfg.Embedding.Model, logger),
	}
	a.Embedder = embedding.NewGateway(provider, cfg.Embedding, logger, embedding.WithCache(cache))

	tracker, err := cost.NewTracker(cfg.Cost, logger)
	if err != nil {
		return fmt.Errorf("failed to create cost tracker: %w", err)
	}
	a.Costs = tracker

	var completer ai.Completer
	if cfg.Reasoning.Provider == config.ReasoningAnthropic {
		c, err := ai.NewAnthropicCompleter(cfg.Reasoning.CompleterConfig, tracker, logger)
		if err != nil {
			return fmt.Errorf("failed to create reasoning provider: %w", err)
		}
		completer = c
		a.Completer = c
	}
	a.Reasoner = ai.NewGateway(completer, cfg.Reasoning.Timeout, logger)

	if a.Jobs, err = jobs.NewService(a.Store, a.Reasoner, cfg.Jobs, logger); err != nil {
		return err
	}
	if a.Matcher, err = matching.NewEngine(a.Store, a.Embedder, a.Reasoner, a.Jobs, cfg.Matching, logger); err != nil {
		a.Jobs.Close()
		return err
	}
	if a.Resolver, err = dedup.NewResolver(a.Store, a.Embedder, a.Reasoner, a.Matcher, cfg.Dedup, logger); err != nil {
		a.Jobs.Close()
		return err
	}
	if a.Profiles, err = profile.NewEngine(a.Store, a.Embedder, a.Reasoner, cfg.Profile, logger); err != nil {
		a.Jobs.Close()
		return err
	}
	if a.Analytics, err = analytics.NewService(a.Store, cfg.Analytics, logger); err != nil {
		a.Jobs.Close()
		return err
	}
	if a.Dispatcher, err = pipeline.NewDispatcher(a.Resolver, a.Profiles, a.Matcher, cfg.Pipeline, logger); err != nil {
		a.Jobs.Close()
		return err
	}
	return nil
}

// Close waits for in-flight events, drains the job queue and closes
// storage.
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.Jobs != nil {
		a.Jobs.Close()
	}
	return a.Store.Close()
}
