package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/flatrank/internal/adapters/events"
	"github.com/okian/flatrank/internal/adapters/http/api"
	"github.com/okian/flatrank/internal/adapters/http/swagger"
	"github.com/okian/flatrank/internal/adapters/mq/queue"
	"github.com/okian/flatrank/internal/adapters/mq/worker"
	"github.com/okian/flatrank/internal/adapters/repository"
	"github.com/okian/flatrank/internal/adapters/repository/postgres"
	"github.com/okian/flatrank/internal/adapters/scraper"
	service "github.com/okian/flatrank/internal/app"
	"github.com/okian/flatrank/internal/config"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/dedupe"
	"github.com/okian/flatrank/internal/domain/glicko"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/internal/supervisor"
	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		// The logger may not be initialized yet.
		fmt.Fprintln(os.Stderr, "flatrank:", err)
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := logger.Get()

	bands, err := cfg.BandConfig()
	if err != nil {
		return err
	}

	store, locker, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "closing store", logger.Error(err))
		}
	}()

	q, err := openQueue(ctx, cfg)
	if err != nil {
		return err
	}

	hub := events.NewHub()

	engine := glicko.New(
		glicko.WithTau(cfg.Rating.Tau),
		glicko.WithDeviationBounds(cfg.Rating.MinDeviation, model.InitialDeviation),
	)
	orchOpts := []ranking.Option{
		ranking.WithEngine(engine),
		ranking.WithReplayMode(ranking.ReplayMode(cfg.Rating.ReplayFrom)),
		ranking.WithParallelism(recomputeParallelism(cfg)),
	}
	if locker != nil {
		orchOpts = append(orchOpts, ranking.WithLocker(locker))
	}
	orch := ranking.New(store, store, orchOpts...)

	if cfg.RecomputeOnStart {
		ids := band.AllIDs(bands)
		results, err := orch.RecomputeAll(ctx, ids)
		if err != nil {
			// Partial writes heal on the band's next event.
			log.Warn(ctx, "startup recompute incomplete", logger.Error(err))
		}
		log.Info(ctx, "startup recompute done", logger.Int("bands", len(results)),
			logger.String("replay_from", cfg.Rating.ReplayFrom))
	}

	client := scraper.New(cfg.Scraper.ResolverURL,
		scraper.WithTimeout(cfg.Scraper.Timeout),
		scraper.WithRateLimit(cfg.Scraper.RatePerSecond, cfg.Scraper.Burst),
		scraper.WithBreaker(cfg.Scraper.BreakerFailures, cfg.Scraper.BreakerCooldown),
	)
	proc := worker.NewProcessor(client, store, orch, hub,
		worker.WithBands(bands),
		worker.WithScrapeTimeout(cfg.Scraper.Timeout),
	)
	pool := worker.NewPool(cfg.WorkerCount, q, proc)

	svc := service.New(store, q, orch,
		service.WithBands(bands),
		service.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		service.WithPublisher(hub),
	)

	apiServer := api.NewServer(svc,
		api.WithEventStream(hub),
		api.WithMount(swagger.Register),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	tree := supervisor.New("flatrank", supervisor.DefaultConfig(), log.Named("supervisor"))
	tree.Add(supervisor.Func{Name: "events", Run: hub.Serve})
	tree.Add(supervisor.Func{Name: "scrape-workers", Run: pool.Serve})
	tree.Add(supervisor.NewHTTPService(srv, shutdownTimeout))
	tree.Add(supervisor.Ticker("system-metrics", systemMetricsInterval, func(context.Context) { updateSystemMetrics() }))
	tree.Add(supervisor.Ticker("service-metrics", serviceMetricsInterval, func(ctx context.Context) {
		updateServiceMetrics(ctx, svc, log)
	}))

	log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr),
		logger.String("store", cfg.Store.Driver), logger.String("queue", cfg.Queue.Driver),
		logger.Int("workers", pool.Size()))

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	log.Info(context.Background(), "server stopped")
	return nil
}

// openStore returns the configured store and, for Postgres, a cross-process band locker.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, ranking.Locker, error) {
	if cfg.Store.Driver != "postgres" {
		return repository.NewMemoryStore(), nil, nil
	}
	if cfg.Store.MigrateOnStart {
		if err := postgres.MigrateUp(cfg.Store.DSN); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	st, err := postgres.Open(ctx, cfg.Store.DSN, postgres.WithMaxOpenConns(cfg.Store.MaxOpenConns))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	locker, err := postgres.NewAdvisoryLocker(st.DB())
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("band locker: %w", err)
	}
	return st, locker, nil
}

func openQueue(ctx context.Context, cfg *config.Config) (queue.Queue, error) {
	metrics.UpdateQueueCapacity(cfg.Queue.Size)
	if cfg.Queue.Driver != "redis" {
		return queue.NewInMemoryQueue(queue.WithCapacity(cfg.Queue.Size)), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr, DB: cfg.Queue.RedisDB})
	q := queue.NewRedisQueue(client, cfg.Queue.RedisKey, queue.WithRedisCapacity(cfg.Queue.Size))
	if err := q.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Queue.RedisAddr, err)
	}
	return q, nil
}

// recomputeParallelism keeps Postgres recomputes from exhausting the pool:
// each band holds one connection for its advisory lock and needs another for queries.
func recomputeParallelism(cfg *config.Config) int {
	n := cfg.RecomputeParallelism
	if cfg.Store.Driver == "postgres" {
		if limit := cfg.Store.MaxOpenConns / 2; n > limit {
			n = max(limit, 1)
		}
	}
	return n
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes listing and queue gauges; Stats records them.
func updateServiceMetrics(ctx context.Context, svc *service.Service, log logger.Logger) {
	st, err := svc.Stats(ctx)
	if err != nil {
		log.Warn(ctx, "stats refresh failed", logger.Error(err))
		return
	}
	metrics.UpdateQueueSize(st.QueueLength)
}
