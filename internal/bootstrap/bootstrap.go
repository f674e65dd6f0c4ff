// Package bootstrap builds the shared service graph used by every binary.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/ckd"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/config"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/db"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/notify"
	redisclient "github.com/hackgods/dialysis-capacity-scheduling/internal/redis"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

type App struct {
	Config config.Config
	Logger *zap.Logger

	PgPool *pgxpool.Pool // nil on the memory store
	Redis  *redis.Client // nil without REDIS_ADDR/REDIS_URL

	Store     scheduling.Store
	Registry  *scheduling.Registry
	Generator *scheduling.Generator
	Allocator *scheduling.Allocator
	Engine    *scheduling.Engine
	CKD       *ckd.Service
	Notifier  notify.Notifier
}

// New connects to the configured backends and wires the services. The
// returned close function releases connections and must be called once.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	app := &App{Config: cfg, Logger: logger}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var ckdRepo ckd.Repository
	switch cfg.DataSource {
	case config.DataSourcePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns: int32(cfg.PGMaxConns),
			MinConns: 1,
			AppName:  "dialysis-scheduling",
		})
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		logger.Info("connected to postgres")

		app.PgPool = pool
		app.Store = scheduling.NewPgStore(pool, cfg.LockTimeout)
		ckdRepo = ckd.NewPgRepository(pool)
	default:
		logger.Warn("using in-memory store; data is lost on exit")
		app.Store = scheduling.NewMemStore()
		ckdRepo = ckd.NewMemRepository()
	}

	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		})
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

		app.Redis = rdb
		locker = redisclient.NewRedisCenterLocker(rdb, cfg.LockTTL)
		notifier := notify.NewRedisNotifier(rdb, cfg.NotifyStream, logger)
		// runs before the client closes so in-flight publishes can finish
		closers = append(closers, func() { notifier.Close(5 * time.Second) })
		app.Notifier = notifier
	} else {
		logger.Info("redis not configured; using in-process generation lock and log notifier")
		locker = redisclient.NewLocalLocker()
		app.Notifier = notify.NewLogNotifier(logger)
	}

	app.Registry = scheduling.NewRegistry(app.Store, logger)
	app.Generator = scheduling.NewGenerator(app.Store, locker, logger, cfg.MaxGenerationDays)
	app.Allocator = scheduling.NewAllocator(app.Store, logger)
	app.Engine = scheduling.NewEngine(app.Store, app.Allocator, app.Notifier, logger, cfg.Location)
	app.CKD = ckd.NewService(ckdRepo, logger, cfg.Location)

	return app, closeAll, nil
}
