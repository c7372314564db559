// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/api"
	"github.com/JakeFAU/aram-crawler/internal/clock/system"
	"github.com/JakeFAU/aram-crawler/internal/config"
	"github.com/JakeFAU/aram-crawler/internal/crawler"
	"github.com/JakeFAU/aram-crawler/internal/id/uuid"
	"github.com/JakeFAU/aram-crawler/internal/logging"
	"github.com/JakeFAU/aram-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/aram-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/aram-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/aram-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/aram-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/aram-crawler/internal/queue"
	queueMemory "github.com/JakeFAU/aram-crawler/internal/queue/memory"
	queueRedis "github.com/JakeFAU/aram-crawler/internal/queue/redis"
	"github.com/JakeFAU/aram-crawler/internal/ranking"
	"github.com/JakeFAU/aram-crawler/internal/riot"
	"github.com/JakeFAU/aram-crawler/internal/scheduler"
	"github.com/JakeFAU/aram-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/aram-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/aram-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/aram-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/aram-crawler/internal/storage/postgres"
	"github.com/JakeFAU/aram-crawler/internal/store"
	"github.com/JakeFAU/aram-crawler/internal/telemetry"
)

const readyTimeout = 2 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	orchestrator    *crawler.Orchestrator
	scheduler       *scheduler.Scheduler
	progressHub     *progress.Hub
	redis           *goredis.Client
	pool            *pgxpool.Pool
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	gcsClient       *gcs.Client
	tracerShutdown  func(context.Context) error
	metricShutdown  func(context.Context) error
}

// stores groups the persistence ports built from config.
type stores struct {
	docs   storage.DocumentStore
	reader storage.MatchReader
	runs   store.RunRepository
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Only non-sensitive fields are logged.
	type sanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		QueueBackend   string `json:"queue_backend"`
		StorageBackend string `json:"storage_backend"`
		ArchiveBackend string `json:"archive_backend,omitempty"`
		Scheduler      bool   `json:"scheduler"`
		HasRiotKey     bool   `json:"has_riot_key"`
	}
	safeCfg := sanitizedConfig{
		ServerPort:     cfg.Server.Port,
		QueueBackend:   cfg.Queue.Backend,
		StorageBackend: cfg.Storage.Backend,
		ArchiveBackend: cfg.Storage.Archive.Backend,
		Scheduler:      cfg.Scheduler.Enabled,
		HasRiotKey:     cfg.Riot.APIKey != "",
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the HTTP server and the scheduler, and blocks until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if a.scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("scheduler started", zap.Duration("interval", a.cfg.SchedulerInterval()))
			a.scheduler.Run(ctx)
		}()
	}

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
	wg.Wait()

	return a.Close(shutdownCtx)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Orchestrator exposes the cycle runner, mainly for tests.
func (a *App) Orchestrator() *crawler.Orchestrator {
	return a.orchestrator
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	// The hub goes first so the store sink can still reach Postgres.
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Application.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	tp, mp, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	app.logger.Info("building application dependencies")
	users, matches, err := setupQueues(ctx, app)
	if err != nil {
		return nil, err
	}

	st, err := setupStores(ctx, app)
	if err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	emitter, err := setupProgress(app, st.runs)
	if err != nil {
		return nil, err
	}

	client, err := setupRiot(app, emitter)
	if err != nil {
		return nil, err
	}

	app.orchestrator, err = crawler.New(crawler.Config{
		APIKey:               cfg.Riot.APIKey,
		SeedUserIDs:          cfg.Crawler.SeedUserIDs,
		MatchPageSize:        cfg.Crawler.MatchPageSize,
		MaxRequestsPerWindow: cfg.Crawler.MaxRequestsPerWindow,
		BatchSize:            cfg.Crawler.BatchSize,
		BatchPause:           cfg.BatchPause(),
		UserTTL:              cfg.UserTTL(),
		EventTopic:           cfg.Crawler.EventTopic,
		ClearStaleSets:       cfg.Crawler.ClearStaleSets,
	}, crawler.Deps{
		Users:     users,
		Matches:   matches,
		Gateway:   client,
		Store:     st.docs,
		Publisher: publisher,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Emitter:   emitter,
		Logger:    logging.Component(logger, "crawler"),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	if err := setupScheduler(app); err != nil {
		return nil, err
	}

	deps := api.Deps{
		Cycles:  app.orchestrator,
		Queues:  map[string]api.QueueAdmin{"users": users, "matches": matches},
		Runs:    st.runs,
		Matches: st.reader,
		Ready:   app.ready,
	}
	if bundle := loadBundle(app); bundle != nil {
		deps.Scorer = bundle
	}
	app.apiServer = api.NewServer(deps, *cfg, logging.Component(logger, "api"))

	return app, nil
}

func (a *App) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	}
	return nil
}

func setupQueues(ctx context.Context, app *App) (*queue.UserIDs, *queue.MatchIDs, error) {
	userNames := queue.NamesFor(app.cfg.Queue.UserPrefix)
	matchNames := queue.NamesFor(app.cfg.Queue.MatchPrefix)
	switch app.cfg.Queue.Backend {
	case "redis":
		client, err := queueRedis.NewClient(ctx, queueRedis.Config{
			Addr:     app.cfg.Queue.Redis.Addr,
			Password: app.cfg.Queue.Redis.Password,
			DB:       app.cfg.Queue.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis client init failed: %w", err)
		}
		app.redis = client
		userQ, err := queueRedis.New(client, userNames)
		if err != nil {
			return nil, nil, fmt.Errorf("user queue init failed: %w", err)
		}
		matchQ, err := queueRedis.New(client, matchNames)
		if err != nil {
			return nil, nil, fmt.Errorf("match queue init failed: %w", err)
		}
		app.logger.Info("using redis queues",
			zap.String("addr", app.cfg.Queue.Redis.Addr),
			zap.String("user_queue", userNames.Queue),
			zap.String("match_queue", matchNames.Queue),
		)
		return queue.NewUserIDs(userQ), queue.NewMatchIDs(matchQ), nil
	default:
		app.logger.Info("using in-memory queues")
		return queue.NewUserIDs(queueMemory.NewQueue()), queue.NewMatchIDs(queueMemory.NewQueue()), nil
	}
}

func setupStores(ctx context.Context, app *App) (stores, error) {
	var st stores
	switch app.cfg.Storage.Backend {
	case "postgres":
		pool, err := pgstore.Open(ctx, pgstore.PoolConfig{
			DSN:             app.cfg.DB.DSN,
			MaxConns:        app.cfg.DB.MaxConns,
			MinConns:        app.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(app.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return stores{}, fmt.Errorf("postgres init failed: %w", err)
		}
		app.pool = pool
		matchStore, err := pgstore.NewMatchStore(pool)
		if err != nil {
			return stores{}, fmt.Errorf("match store init failed: %w", err)
		}
		runStore, err := pgstore.NewRunStore(pool)
		if err != nil {
			return stores{}, fmt.Errorf("run store init failed: %w", err)
		}
		st = stores{docs: matchStore, reader: matchStore, runs: runStore}
		app.logger.Info("using postgres document store")
	default:
		docs := memoryStorage.NewDocumentStore()
		st = stores{docs: docs, reader: docs, runs: memoryStorage.NewRunStore()}
		app.logger.Info("using in-memory document store")
	}

	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return stores{}, err
	}
	if blobs != nil {
		archive, err := storage.NewArchive(st.docs, blobs, app.cfg.Storage.Archive.Prefix, nil,
			logging.Component(app.logger, "archive"))
		if err != nil {
			return stores{}, fmt.Errorf("archive init failed: %w", err)
		}
		st.docs = archive
	}
	return st, nil
}

func setupArchive(ctx context.Context, app *App) (storage.BlobWriter, error) {
	archiveCfg := app.cfg.Storage.Archive
	switch archiveCfg.Backend {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: archiveCfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving documents to GCS", zap.String("bucket", archiveCfg.GCSBucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: archiveCfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving documents locally", zap.String("path", archiveCfg.LocalDir))
		return blobs, nil
	case "memory":
		app.logger.Info("archiving documents in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		app.logger.Debug("document archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupProgress(app *App, runs store.RunRepository) (progress.Emitter, error) {
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(runs, logging.Component(app.logger, "progress_store")),
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if app.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(logging.Component(app.logger, "progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		Logger:         logging.Component(app.logger, "progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Int("sinks", len(sinkList)),
	)
	return app.progressHub, nil
}

func setupRiot(app *App, emitter progress.Emitter) (*riot.Client, error) {
	opts := []riot.Option{
		riot.WithEmitter(emitter),
		riot.WithLogger(logging.Component(app.logger, "riot")),
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.Riot.RateLimitRPS,
		DefaultBurst: app.cfg.Riot.RateLimitBurst,
	})
	if limiter.Enabled() {
		opts = append(opts, riot.WithLimiter(limiter))
		app.logger.Info("riot rate limiter enabled",
			zap.Float64("rps", app.cfg.Riot.RateLimitRPS),
			zap.Int("burst", app.cfg.Riot.RateLimitBurst),
		)
	}
	client, err := riot.New(riot.Config{
		BaseURL:     app.cfg.Riot.BaseURL,
		APIKey:      app.cfg.Riot.APIKey,
		Timeout:     app.cfg.RiotTimeout(),
		MaxInFlight: app.cfg.Riot.MaxInFlight,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("riot client init failed: %w", err)
	}
	if !client.HasAPIKey() {
		app.logger.Warn("riot api key is not configured; cycles will report an error status")
	}
	return client, nil
}

func setupScheduler(app *App) error {
	if !app.cfg.Scheduler.Enabled {
		app.logger.Info("scheduler disabled; cycles run only through the API")
		return nil
	}
	orch := app.orchestrator
	tasks := []scheduler.Task{
		{
			Name: crawler.CycleUsers,
			Run: func(ctx context.Context) error {
				_, err := orch.RunUserCycle(ctx)
				return err
			},
		},
		{
			Name: crawler.CycleMatches,
			Run: func(ctx context.Context) error {
				_, err := orch.RunMatchCycle(ctx)
				return err
			},
		},
	}
	sched, err := scheduler.New(scheduler.Config{
		Interval:   app.cfg.SchedulerInterval(),
		Retries:    app.cfg.Scheduler.Retries,
		RetryDelay: app.cfg.SchedulerRetryDelay(),
	}, system.New(), logging.Component(app.logger, "scheduler"), tasks...)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	app.scheduler = sched
	return nil
}

// loadBundle returns nil when no model is configured or it cannot be read;
// the rankings route then answers 503.
func loadBundle(app *App) *ranking.Bundle {
	dir := app.cfg.Ranking.ModelDir
	if dir == "" {
		app.logger.Info("no ranking model configured")
		return nil
	}
	bundle, err := ranking.LoadBundle(dir)
	if err != nil {
		app.logger.Warn("ranking model load failed", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	app.logger.Info("ranking model loaded", zap.String("dir", dir))
	return bundle
}
