package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quotecraft/drew"
	"github.com/quotecraft/drew/internal/config"
	"github.com/quotecraft/drew/pkg/adapters/file"
	"github.com/quotecraft/drew/pkg/adapters/llm"
	"github.com/quotecraft/drew/pkg/adapters/memory"
	"github.com/quotecraft/drew/pkg/adapters/redis"
	"github.com/quotecraft/drew/pkg/adapters/sqlite"
	"github.com/quotecraft/drew/pkg/adapters/tradecraft"
	"github.com/quotecraft/drew/pkg/observability"
	"github.com/quotecraft/drew/pkg/persistence/middleware"
	"github.com/quotecraft/drew/pkg/ports"
	"github.com/quotecraft/drew/pkg/session"
)

// app holds every wired component of one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *drew.Engine
	library  *tradecraft.Library
	catalog  *sqlite.Catalog
	sessions *session.Manager
	metrics  *observability.Metrics

	closers []func() error
}

// buildApp wires the collaborators named by cfg into an engine.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	var err error
	if cfg.Tradecraft.Dir != "" {
		a.library, err = tradecraft.LoadDir(cfg.Tradecraft.Dir)
	} else {
		a.library, err = tradecraft.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("tradecraft: %w", err)
	}
	logger.Debug("tradecraft loaded", "documents", a.library.Len(), "dir", cfg.Tradecraft.Dir)

	if a.catalog, err = openCatalog(ctx, cfg.Catalog, logger); err != nil {
		return nil, a.fail(err)
	}
	a.closers = append(a.closers, a.catalog.Close)

	store, locker, err := openStore(cfg.Store)
	if err != nil {
		return nil, a.fail(err)
	}
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	store, err = wrapStore(store, cfg.Store)
	if err != nil {
		return nil, a.fail(err)
	}
	opts := []session.Option{session.WithLogger(logger), session.WithLockTTL(cfg.Store.LockTTL)}
	if locker != nil {
		opts = append(opts, session.WithLocker(locker))
	}
	a.sessions = session.NewManager(store, opts...)

	engineOpts := []drew.Option{
		drew.WithLogger(logger),
		drew.WithLifecycleHooks(observability.Compose(observability.LoggingHooks(logger), a.metrics.Hooks())),
		drew.WithKnowledgeBase(a.library),
		drew.WithProductSearcher(a.catalog),
	}
	if interp := newInterpreter(cfg.LLM, logger); interp != nil {
		engineOpts = append(engineOpts, drew.WithInterpreter(interp), drew.WithChecklistAdjuster(interp))
	}
	engineOpts = append(engineOpts, engineOptions(cfg.Engine)...)

	if a.engine, err = drew.New(engineOpts...); err != nil {
		return nil, a.fail(err)
	}
	return a, nil
}

func engineOptions(e config.EngineConfig) []drew.Option {
	var opts []drew.Option
	if e.ClarifyThreshold > 0 {
		opts = append(opts, drew.WithClarifyThreshold(e.ClarifyThreshold))
	}
	if e.CollaboratorTimeout > 0 {
		opts = append(opts, drew.WithCollaboratorTimeout(e.CollaboratorTimeout))
	}
	if e.SearchConcurrency > 0 {
		opts = append(opts, drew.WithSearchConcurrency(e.SearchConcurrency))
	}
	if e.SearchLimit > 0 {
		opts = append(opts, drew.WithSearchLimit(e.SearchLimit))
	}
	if e.MaxTranscript > 0 {
		opts = append(opts, drew.WithMaxTranscript(e.MaxTranscript))
	}
	return opts
}

func (a *app) fail(err error) error {
	return errors.Join(err, a.Close())
}

// Close releases the catalog and store connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openCatalog(ctx context.Context, cfg config.CatalogConfig, logger *slog.Logger) (*sqlite.Catalog, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	catalog, err := sqlite.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if cfg.Import != "" {
		n, err := catalog.ImportFile(ctx, cfg.Import)
		if err != nil {
			_ = catalog.Close()
			return nil, fmt.Errorf("catalog import: %w", err)
		}
		logger.Info("catalog imported", "products", n, "file", cfg.Import)
	}
	return catalog, nil
}

func openStore(cfg config.StoreConfig) (ports.ContextStore, ports.DistributedLocker, error) {
	switch cfg.Driver {
	case config.StoreFile:
		return file.New(cfg.Dir), nil, nil
	case config.StoreRedis:
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redis.WithTTL(cfg.TTL))
		return store, redis.NewLocker(store.Client(), "drew:"), nil
	case config.StoreMemory, "":
		return memory.NewStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// wrapStore applies PII masking before encryption so that masked values
// are what gets sealed.
func wrapStore(store ports.ContextStore, cfg config.StoreConfig) (ports.ContextStore, error) {
	var mws []middleware.Middleware
	if cfg.MaskPII {
		mws = append(mws, middleware.NewPIIMiddleware())
	}
	if cfg.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func newInterpreter(cfg config.LLMConfig, logger *slog.Logger) *llm.Interpreter {
	var c llm.Completer
	switch cfg.Provider {
	case config.ProviderAnthropic:
		c = llm.NewAnthropic(cfg.APIKey, cfg.Model)
	case config.ProviderOpenAI:
		c = llm.NewOpenAI(cfg.APIKey, cfg.Model)
	default:
		return nil
	}
	logger.Info("delegated interpretation enabled", "provider", cfg.Provider, "model", cfg.Model)
	return llm.New(c, llm.WithLogger(logger))
}
