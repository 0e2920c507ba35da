// Package container wires the publish orchestrator from configuration.
package container

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relicta-tech/launchpad/internal/config"
	"github.com/relicta-tech/launchpad/internal/domain/publish/adapters"
	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	"github.com/relicta-tech/launchpad/internal/errors"
	"github.com/relicta-tech/launchpad/internal/httpserver/handlers"
	"github.com/relicta-tech/launchpad/internal/infrastructure/approval"
	"github.com/relicta-tech/launchpad/internal/infrastructure/artifact"
	"github.com/relicta-tech/launchpad/internal/infrastructure/builder"
	"github.com/relicta-tech/launchpad/internal/infrastructure/configstore"
	"github.com/relicta-tech/launchpad/internal/infrastructure/gitmirror"
	"github.com/relicta-tech/launchpad/internal/infrastructure/persistence/postgres"
	"github.com/relicta-tech/launchpad/internal/infrastructure/redisstore"
	"github.com/relicta-tech/launchpad/internal/infrastructure/repository"
	"github.com/relicta-tech/launchpad/internal/infrastructure/webhook"
	"github.com/relicta-tech/launchpad/internal/observability"
)

// defaultShutdownTimeout is the default timeout for graceful shutdown of components.
const defaultShutdownTimeout = 10 * time.Second

// Closeable represents a component that can be closed/shutdown.
type Closeable interface {
	Close() error
}

// App holds every component of a running orchestrator.
type App struct {
	config  *config.Config
	version string
	logger  *slog.Logger
	mu      sync.RWMutex
	closed  bool

	// Infrastructure layer
	settings  app.Settings
	repos     Repositories
	locks     ports.LockManager
	tokens    ports.TokenSource
	artifacts ports.ArtifactStore
	builder   ports.Builder
	store     ports.ConfigStore
	repo      ports.RepositoryService
	approvals ports.ApprovalService
	notifier  ports.Notifier
	metrics   *observability.Metrics

	// Application layer
	publish   *app.PublishService
	lifecycle *app.TaskLifecycle
	rollback  *app.RollbackService
	query     *app.QueryService
	history   *app.HistoryService
	handlers  *handlers.Handlers

	// Cleanup tracking
	closeables []Closeable
}

// Option customizes an App.
type Option func(*App)

// WithVersion sets the build version reported by health and metrics.
func WithVersion(version string) Option {
	return func(a *App) { a.version = version }
}

// WithLogger sets the container logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an App with the given configuration. Nothing is connected
// until Initialize.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.Config("container.New", "configuration is required")
	}

	a := &App{
		config:     cfg,
		version:    "dev",
		logger:     slog.Default(),
		closeables: make([]Closeable, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// registerCloseable registers a component for cleanup during shutdown.
func (a *App) registerCloseable(closeable Closeable) {
	if closeable != nil {
		a.closeables = append(a.closeables, closeable)
	}
}

// RegisterCloseable allows external components to register for cleanup during shutdown.
// Components are closed in reverse order of registration (LIFO).
func (a *App) RegisterCloseable(closeable Closeable) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerCloseable(closeable)
}

// Initialize connects the infrastructure and builds the application services.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.State("container.Initialize", "container is closed")
	}

	settings, err := SettingsFromConfig(a.config)
	if err != nil {
		return err
	}
	a.settings = settings

	if err := a.initStorage(ctx); err != nil {
		return err
	}
	if err := a.initRedis(ctx); err != nil {
		return err
	}
	if err := a.initArtifacts(ctx); err != nil {
		return err
	}
	a.initClients()
	a.initApplicationLayer()

	a.logger.Info("orchestrator initialized",
		"storage", a.config.Storage.Driver,
		"redis", a.config.Redis.Enabled,
		"artifacts", a.config.Artifacts.Enabled,
		"repository", a.config.Repository.Provider)
	return nil
}

// initStorage opens the configured entity store and loads reference data.
func (a *App) initStorage(ctx context.Context) error {
	const op = "container.initStorage"

	var seed *adapters.SeedData
	if path := a.config.Storage.SeedFile; path != "" {
		var err error
		if seed, err = adapters.LoadSeedFile(path); err != nil {
			return errors.ConfigWrap(err, op, "failed to load seed file")
		}
	}

	switch a.config.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, postgres.Config{
			URL:          a.config.Storage.DSN,
			MaxOpenConns: a.config.Storage.MaxOpenConns,
		})
		if err != nil {
			return errors.DependencyWrap(err, op, "failed to connect to postgres")
		}
		a.registerCloseable(db)

		if err := postgres.Migrate(ctx, db); err != nil {
			return errors.DependencyWrap(err, op, "failed to apply schema")
		}
		if seed != nil {
			if err := postgres.Seed(ctx, db, seed); err != nil {
				return errors.DependencyWrap(err, op, "failed to seed postgres")
			}
		}
		a.repos = postgresRepositories(postgres.NewRepositories(db))

	case "memory", "":
		store := adapters.NewMemoryStore()
		if seed != nil {
			if err := store.Seed(seed); err != nil {
				return errors.ConfigWrap(err, op, "invalid seed data")
			}
		}
		a.repos = memoryRepositories(store)

	default:
		return errors.Config(op, "unknown storage driver "+a.config.Storage.Driver)
	}
	return nil
}

// initRedis connects the shared token cache and lock. Without Redis, locks
// are process-local and third-party publishes fail on the token lookup.
func (a *App) initRedis(ctx context.Context) error {
	if !a.config.Redis.Enabled {
		a.locks = adapters.NewKeyedLockManager()
		a.tokens = unconfiguredTokens{}
		return nil
	}

	store, err := redisstore.New(ctx, redisstore.Config{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
		TokenKey: a.config.Redis.TokenKey,
		LockTTL:  a.config.Redis.LockTTL,
	})
	if err != nil {
		return errors.DependencyWrap(err, "container.initRedis", "failed to connect to redis")
	}
	a.registerCloseable(store)
	a.locks = store
	a.tokens = store
	return nil
}

// initArtifacts selects the artifact store.
func (a *App) initArtifacts(ctx context.Context) error {
	const op = "container.initArtifacts"

	cfg := a.config.Artifacts
	if !cfg.Enabled {
		a.artifacts = adapters.NewMemoryArtifactStore()
		return nil
	}

	store, err := artifact.New(artifact.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return errors.ConfigWrap(err, op, "invalid artifact store configuration")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return errors.DependencyWrap(err, op, "failed to prepare artifact bucket")
	}
	a.artifacts = store
	return nil
}

// initClients creates the outbound service clients.
func (a *App) initClients() {
	cfg := a.config

	a.builder = builder.New(builder.Config{
		URL:             cfg.Builder.URL,
		User:            cfg.Builder.User,
		Token:           cfg.Builder.Token,
		Timeout:         cfg.Builder.Timeout,
		BreakerFailures: int(cfg.Builder.BreakerFailures),
		BreakerTimeout:  cfg.Builder.BreakerTimeout,
	})

	a.store = configstore.New(configstore.Config{
		URLs:     a.settings.ConfigStoreURLs,
		Username: cfg.ConfigStore.Username,
		Password: cfg.ConfigStore.Password,
		Group:    cfg.ConfigStore.Group,
		Timeout:  cfg.ConfigStore.Timeout,
		Retries:  cfg.ConfigStore.Retries,
	})

	api := repository.New(repository.Config{
		APIURL:         cfg.Repository.APIURL,
		Token:          cfg.Repository.Token,
		CompareTimeout: cfg.Repository.CompareTimeout,
		Retries:        cfg.Repository.Retries,
	})
	a.repo = api
	if cfg.Repository.Provider == "mirror" {
		a.repo = NewMirroredRepository(api, gitmirror.New(gitmirror.Config{
			Dir:            cfg.Repository.MirrorDir,
			BaseURL:        cfg.Repository.MirrorURL,
			Token:          cfg.Repository.Token,
			CompareTimeout: cfg.Repository.CompareTimeout,
		}))
	}

	a.approvals = approval.New(approval.Config{
		URL:     cfg.Approval.URL,
		Token:   cfg.Approval.Token,
		Timeout: cfg.Approval.Timeout,
	})

	a.notifier = webhook.NewNotifier(webhook.Config{
		URL:        cfg.Callback.URL,
		Secret:     cfg.Callback.Secret,
		Timeout:    cfg.Callback.Timeout,
		MaxRetries: cfg.Callback.MaxRetries,
		RetryDelay: cfg.Callback.RetryDelay,
	})

	a.metrics = observability.NewMetrics(a.version)
}

// initApplicationLayer builds the application services and HTTP handlers.
func (a *App) initApplicationLayer() {
	r := a.repos
	clock := ports.RealClock{}

	tracker := app.NewStateTracker(r.Iterations, r.Processes)
	branches := app.NewBranchResolver(a.repo, a.settings)
	validator := app.NewEnvironmentValidator(a.settings, a.approvals, r.Configurations, r.Iterations, a.repo, branches)

	a.history = app.NewHistoryService(r.Tasks, r.History, a.artifacts, clock)
	a.lifecycle = app.NewTaskLifecycle(app.LifecycleDeps{
		Tasks:     r.Tasks,
		History:   r.History,
		Artifacts: a.artifacts,
		Store:     a.store,
		Notifier:  a.notifier,
		Tracker:   tracker,
		Metrics:   a.metrics,
	})
	packager := app.NewPackager(a.settings, app.PackagerDeps{
		Store:      a.store,
		Domains:    r.Domains,
		Projects:   r.Projects,
		Iterations: r.Iterations,
		ThirdParty: r.ThirdParty,
		Tokens:     a.tokens,
		History:    r.History,
		Recorder:   a.history,
		Clock:      clock,
	})

	a.publish = app.NewPublishService(a.settings, app.PublishDeps{
		Tasks:       r.Tasks,
		Iterations:  r.Iterations,
		Processes:   r.Processes,
		Projects:    r.Projects,
		Operations:  r.Operations,
		Comparer:    a.repo,
		Locks:       a.locks,
		Validator:   validator,
		Branches:    branches,
		Packager:    packager,
		Lifecycle:   a.lifecycle,
		Coordinator: app.NewBuildCoordinator(a.builder, a.lifecycle, a.settings),
		Tracker:     tracker,
		Clock:       clock,
		Metrics:     a.metrics,
	})
	a.rollback = app.NewRollbackService(app.RollbackDeps{
		Projects:       r.Projects,
		Configurations: r.Configurations,
		History:        r.History,
		Artifacts:      a.artifacts,
		Store:          a.store,
		Packager:       packager,
		Metrics:        a.metrics,
	})
	a.query = app.NewQueryService(a.settings, r.Tasks, r.History, r.Projects, r.Iterations)

	a.handlers = handlers.New(handlers.Deps{
		Publisher: a.publish,
		Lifecycle: a.lifecycle,
		Rollback:  a.rollback,
		Query:     a.query,
		Artifacts: a.history,
		Version:   a.version,
	})
}

// Application layer accessors

// Publish returns the publish service.
func (a *App) Publish() *app.PublishService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.publish
}

// Lifecycle returns the task lifecycle.
func (a *App) Lifecycle() *app.TaskLifecycle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lifecycle
}

// Rollback returns the rollback service.
func (a *App) Rollback() *app.RollbackService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rollback
}

// Query returns the query service.
func (a *App) Query() *app.QueryService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.query
}

// History returns the artifact history service.
func (a *App) History() *app.HistoryService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history
}

// Handlers returns the HTTP handlers.
func (a *App) Handlers() *handlers.Handlers {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handlers
}

// Infrastructure layer accessors

// Repositories returns the storage ports.
func (a *App) Repositories() Repositories {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.repos
}

// Metrics returns the metrics registry.
func (a *App) Metrics() *observability.Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metrics
}

// Config returns the configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Close gracefully shuts down the container and all its components.
func (a *App) Close() error {
	return a.CloseWithTimeout(defaultShutdownTimeout)
}

// CloseWithTimeout gracefully shuts down the container with a custom timeout.
func (a *App) CloseWithTimeout(timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	a.logger.Debug("initiating container shutdown", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Close all registered closeables in reverse order (LIFO)
	var errs []error
	for i := len(a.closeables) - 1; i >= 0; i-- {
		if err := a.closeWithContext(ctx, a.closeables[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		a.logger.Warn("some components failed to close cleanly", "error_count", len(errs))
		return errs[0]
	}

	a.logger.Debug("container shutdown completed successfully")
	return nil
}

// closeWithContext closes a component with context cancellation support.
func (a *App) closeWithContext(ctx context.Context, closeable Closeable) error {
	done := make(chan error, 1)
	go func() {
		done <- closeable.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.logger.Warn("component close timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// NewInitialized creates and initializes a new App.
func NewInitialized(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := a.Initialize(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}
