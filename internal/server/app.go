// Package server builds the service's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/api"
	"github.com/JakeFAU/careers-ingest/internal/canonical"
	"github.com/JakeFAU/careers-ingest/internal/clock/system"
	"github.com/JakeFAU/careers-ingest/internal/config"
	"github.com/JakeFAU/careers-ingest/internal/dispatcher"
	"github.com/JakeFAU/careers-ingest/internal/enrich"
	"github.com/JakeFAU/careers-ingest/internal/extract"
	"github.com/JakeFAU/careers-ingest/internal/extract/browser"
	"github.com/JakeFAU/careers-ingest/internal/extract/hosted"
	"github.com/JakeFAU/careers-ingest/internal/hash/sha256"
	"github.com/JakeFAU/careers-ingest/internal/id/uuid"
	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/llm/anthropic"
	"github.com/JakeFAU/careers-ingest/internal/pipeline"
	"github.com/JakeFAU/careers-ingest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/careers-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/careers-ingest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/careers-ingest/internal/queue/memory"
	"github.com/JakeFAU/careers-ingest/internal/snapshot"
	gcsstorage "github.com/JakeFAU/careers-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/careers-ingest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/careers-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/careers-ingest/internal/storage/postgres"
	"github.com/JakeFAU/careers-ingest/internal/telemetry"
	"github.com/JakeFAU/careers-ingest/internal/validate"
	"github.com/JakeFAU/careers-ingest/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	store          ingest.Store
	pgStore        *pgstore.Store
	runner         *pipeline.Runner
	apiServer      *api.Server
	dispatch       *dispatcher.Dispatcher
	queue          *queueMemory.Queue
	browser        *browser.Extractor
	pubsubClient   *pubsub.Client
	gcpPublisher   *gcppublisher.Publisher
	storage        *storage.Client
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_backend", cfg.DB.Backend),
		zap.String("extractor_backend", cfg.Extractor.Backend),
	)

	if err := app.build(ctx); err != nil {
		_ = app.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	if a.cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: a.cfg.Telemetry.ServiceName,
			SampleRatio: a.cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
	}

	if err := setupDatabase(ctx, a); err != nil {
		return err
	}
	blobStore, err := setupStorage(ctx, a)
	if err != nil {
		return err
	}
	notifier, err := setupPublisher(ctx, a)
	if err != nil {
		return err
	}
	completer, err := anthropic.New(anthropic.Config{
		APIKey:     a.cfg.LLM.APIKey,
		BaseURL:    a.cfg.LLM.BaseURL,
		Model:      a.cfg.LLM.Model,
		MaxRetries: a.cfg.LLM.MaxRetries,
		Timeout:    a.cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("llm client init failed: %w", err)
	}
	backend, err := setupExtractor(a, completer)
	if err != nil {
		return err
	}

	clock := system.New()
	ids := uuid.New()
	publisher, err := snapshot.NewPublisher(a.store, clock, ids, a.logger)
	if err != nil {
		return fmt.Errorf("snapshot publisher init failed: %w", err)
	}
	a.runner, err = pipeline.NewRunner(pipeline.Deps{
		Companies:   a.store,
		Extractor:   extract.New(backend, a.logger.Named("extract")),
		Classifier:  enrich.NewClassifier(completer, a.logger),
		Cleaner:     enrich.NewCleaner(completer, a.logger),
		Snapshots:   publisher,
		Keyer:       canonical.NewKeyer(sha256.New()),
		Policy:      validate.NewPolicy(a.cfg.Ingest.ValidityThreshold),
		Archive:     blobStore,
		Notifier:    notifier,
		NotifyTopic: a.cfg.PubSub.Topic,
		Clock:       clock,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.dispatch, err = setupDispatcher(a, clock, ids)
	if err != nil {
		return err
	}

	a.apiServer = api.NewServer(api.Deps{
		Store:          a.store,
		Ingester:       a.runner,
		Dispatcher:     a.dispatch,
		IDs:            ids,
		Clock:          clock,
		Auth:           a.cfg.Auth,
		RunTimeout:     a.cfg.Ingest.RunTimeout,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Logger:         a.logger,
	})
	return nil
}

// Runner returns the per-company pipeline.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Dispatcher returns the batch and queue dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatch }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Ingest runs one company synchronously under the configured run timeout.
func (a *App) Ingest(ctx context.Context, companyID string) (ingest.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Ingest.RunTimeout)
	defer cancel()
	return a.runner.IngestCompany(ctx, companyID)
}

// DispatchAll runs every eligible company in batches.
func (a *App) DispatchAll(ctx context.Context) (dispatcher.BatchReport, error) {
	return a.dispatch.DispatchAll(ctx)
}

// Run starts the workers and the HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Ingest.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.dispatch.Shutdown(shutdownCtx)
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown timeout")
	}

	return a.Close(shutdownCtx)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.Backend == "memory" {
		app.logger.Warn("using in-memory store; data is lost on exit")
		app.store = memoryStorage.NewStore()
		return nil
	}
	var err error
	app.pgStore, err = pgstore.New(ctx, pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	app.store = app.pgStore
	app.logger.Info("postgres store initialized", zap.Int32("max_conns", app.cfg.DB.MaxConns))
	return nil
}

func setupStorage(ctx context.Context, app *App) (ingest.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.GCSBucket,
			Prefix: app.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		return blobStore, nil
	case "local":
		app.logger.Info("using local storage backend")
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.LocalDir))
		return blobStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (ingest.Publisher, error) {
	if app.cfg.PubSub.Backend != "gcp" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.gcpPublisher, err = gcppublisher.New(app.pubsubClient, app.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return app.gcpPublisher, nil
}

func setupExtractor(app *App, completer ingest.Completer) (ingest.Extractor, error) {
	if app.cfg.Extractor.Backend == "browser" {
		bc := app.cfg.Extractor.Browser
		ext, err := browser.NewChromedp(browser.Config{
			MaxParallel:       bc.MaxParallel,
			UserAgent:         bc.UserAgent,
			NavigationTimeout: bc.NavigationTimeout,
			ScrollSteps:       bc.ScrollSteps,
			ScrollPause:       bc.ScrollPause,
			MaxTextRunes:      bc.MaxTextRunes,
		}, completer, app.logger.Named("browser"))
		if err != nil {
			return nil, fmt.Errorf("browser extractor init failed: %w", err)
		}
		app.browser = ext
		app.logger.Info("using browser extractor", zap.Int("max_parallel", bc.MaxParallel))
		return ext, nil
	}

	rl := app.cfg.Extractor.RateLimit
	limiter := ratelimit.New(ratelimit.Config{RPS: rl.RPS, Burst: rl.Burst})
	app.logger.Info("rate limiter enabled",
		zap.Float64("rps", rl.RPS),
		zap.Int("burst", rl.Burst),
	)
	hc := app.cfg.Extractor.Hosted
	client, err := hosted.New(hosted.Config{
		BaseURL:      hc.BaseURL,
		APIKey:       hc.APIKey,
		PollInterval: hc.PollInterval,
		MaxWait:      hc.MaxWait,
		HTTPTimeout:  hc.HTTPTimeout,
	}, limiter, app.logger.Named("hosted"))
	if err != nil {
		return nil, fmt.Errorf("hosted extractor init failed: %w", err)
	}
	return client, nil
}

func setupDispatcher(app *App, clock ingest.Clock, ids ingest.IDGenerator) (*dispatcher.Dispatcher, error) {
	app.queue = queueMemory.NewQueue(app.cfg.Queue.Capacity)
	workerCfg := worker.Config{RunTimeout: app.cfg.Ingest.RunTimeout}
	app.logger.Info("worker config",
		zap.Int("workers", app.cfg.Ingest.Workers),
		zap.Duration("run_timeout", workerCfg.RunTimeout),
		zap.Int("batch_size", app.cfg.Ingest.BatchSize),
	)

	var workers []*worker.Worker
	for i := 0; i < app.cfg.Ingest.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.store,
			app.runner,
			clock,
			workerCfg,
			app.logger.With(zap.Int("index", i)),
		))
	}
	executor := worker.New(nil, app.store, app.runner, clock, workerCfg, app.logger.Named("batch"))

	d, err := dispatcher.New(dispatcher.Deps{
		Queue:     app.queue,
		Workers:   workers,
		Executor:  executor,
		Companies: app.store,
		Tasks:     app.store,
		IDs:       ids,
		Clock:     clock,
		BatchSize: app.cfg.Ingest.BatchSize,
		Logger:    app.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher init failed: %w", err)
	}
	return d, nil
}
