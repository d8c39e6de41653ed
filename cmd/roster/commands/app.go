package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"roster/internal/identity/dedupe"
	"roster/internal/identity/events"
	identitymetrics "roster/internal/identity/metrics"
	"roster/internal/identity/service"
	"roster/internal/identity/store/athlete"
	"roster/internal/identity/store/facts"
	"roster/internal/identity/store/mapping"
	"roster/internal/platform/config"
	"roster/internal/platform/metrics"
	redisclient "roster/internal/platform/redis"
	txcontext "roster/pkg/platform/tx"
)

// Metrics register with the default Prometheus registry, so they are built
// once per process however many apps are opened.
var (
	metricsOnce     sync.Once
	runMetrics      *metrics.Metrics
	identityMetrics *identitymetrics.Metrics
)

func processMetrics() (*metrics.Metrics, *identitymetrics.Metrics) {
	metricsOnce.Do(func() {
		runMetrics = metrics.New()
		identityMetrics = identitymetrics.New()
	})
	return runMetrics, identityMetrics
}

type athleteStore interface {
	service.AthleteStore
	dedupe.AthleteStore
}

type mappingStore interface {
	service.MappingStore
	dedupe.MappingStore
}

type factStore interface {
	service.FactStore
	dedupe.FactStore
}

// App holds the stores and services one command runs against.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Identity *identitymetrics.Metrics

	DB        *sql.DB
	Redis     *redisclient.Client
	Kafka     *events.KafkaPublisher
	Publisher events.Publisher

	Athletes athleteStore
	Mappings mappingStore
	Facts    factStore
	Tx       txcontext.Runner
	Cache    dedupe.CacheInvalidator

	Service *service.Service

	closers []func()
}

// OpenApp connects to Postgres, and to Redis and Kafka when configured. With
// dryRun it uses in-memory stores and records events in memory instead.
func OpenApp(ctx context.Context, cfg config.Config, log *slog.Logger, dryRun bool) (*App, error) {
	if dryRun {
		return NewMemoryApp(cfg, log)
	}
	app := newApp(cfg, log)

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	app.onClose(func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	app.DB = db
	app.Athletes = athlete.NewPostgres(db)
	app.Facts = facts.NewPostgres(db)
	app.Tx = txcontext.NewPostgresRunner(db, cfg.Database.TxTimeout)

	var mappings mappingStore = mapping.NewPostgres(db)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		// The cache is optional; lookups fall through to Postgres.
		log.WarnContext(ctx, "mapping cache disabled", "error", err)
	}
	if rc != nil {
		app.Redis = rc
		app.onClose(func() { _ = rc.Close() })
		cached := mapping.NewCachedStore(mapping.NewPostgres(db), rc.Client,
			mapping.WithCacheTTL(cfg.Redis.MappingTTL),
			mapping.WithCacheLogger(log),
		)
		mappings = cached
		app.Cache = cached
	}
	app.Mappings = mappings

	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, events.WithLogger(log))
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Kafka = kp
		app.Publisher = kp
		app.onClose(kp.Close)
	}

	if err := app.buildService(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// NewMemoryApp wires every store in memory. Events are kept in an
// events.Recorder.
func NewMemoryApp(cfg config.Config, log *slog.Logger) (*App, error) {
	app := newApp(cfg, log)
	app.Athletes = athlete.NewInMemory()
	app.Mappings = mapping.NewInMemory()
	app.Facts = facts.NewInMemory()
	app.Tx = &txcontext.Serial{}
	app.Publisher = events.NewRecorder()
	if err := app.buildService(); err != nil {
		return nil, err
	}
	return app, nil
}

func newApp(cfg config.Config, log *slog.Logger) *App {
	run, identity := processMetrics()
	return &App{Config: cfg, Logger: log, Metrics: run, Identity: identity}
}

func (a *App) buildService() error {
	opts := []service.Option{
		service.WithLogger(a.Logger),
		service.WithMetrics(a.Identity),
		service.WithTxRunner(a.Tx),
		service.WithFuzzyMinScore(a.Config.Identity.FuzzyMinScore),
		service.WithSearchLimit(a.Config.Identity.SearchLimit),
	}
	if a.Publisher != nil {
		opts = append(opts, service.WithEventPublisher(a.Publisher))
	}
	svc, err := service.New(a.Athletes, a.Mappings, a.Facts, opts...)
	if err != nil {
		return err
	}
	a.Service = svc
	return nil
}

// Dedupe builds a duplicate runner at threshold.
func (a *App) Dedupe(threshold float64, workers int) (*dedupe.Runner, error) {
	detector, err := dedupe.NewDetector(a.Athletes,
		dedupe.WithThreshold(threshold),
		dedupe.WithWorkers(workers),
		dedupe.WithDetectorLogger(a.Logger),
		dedupe.WithDetectorMetrics(a.Identity),
	)
	if err != nil {
		return nil, err
	}
	opts := []dedupe.MergerOption{
		dedupe.WithLogger(a.Logger),
		dedupe.WithMetrics(a.Identity),
		dedupe.WithTxRunner(a.Tx),
		dedupe.WithFlagRefresher(a.Service),
	}
	if a.Cache != nil {
		opts = append(opts, dedupe.WithCacheInvalidator(a.Cache))
	}
	if a.Publisher != nil {
		opts = append(opts, dedupe.WithEventPublisher(a.Publisher))
	}
	merger, err := dedupe.NewMerger(a.Athletes, a.Mappings, a.Facts, opts...)
	if err != nil {
		return nil, err
	}
	return dedupe.NewRunner(detector, merger, dedupe.WithRunnerLogger(a.Logger))
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
