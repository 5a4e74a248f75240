// Package server 按配置装配 API 进程：数据库、缓存、通知、任务投递、调度与路由。
// cmd/api 与控制台的进程内 mock 模式共用这一套装配。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"vectorAdmin/internal/api"
	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/cache"
	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/notify"
	"vectorAdmin/internal/progress"
	"vectorAdmin/internal/scheduler"
	"vectorAdmin/internal/storage"
	"vectorAdmin/internal/tasks"
	"vectorAdmin/internal/worker"
)

const memoryCacheItems = 10000

// Server 装配完成的 API 进程。
type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine

	logger    *slog.Logger
	ticker    *progress.Ticker
	scheduler *scheduler.Scheduler
	inline    *tasks.InlineEnqueuer
	closers   []func() error

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New 初始化全部依赖。未启用 Redis 时使用进程内缓存与通知，任务在进程内执行，
// 此时进度推进器也由本进程负责。
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Config: cfg, logger: logger}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	s.DB = db
	if cfg.API.Seed {
		if err := database.Seed(ctx, db); err != nil {
			return nil, fmt.Errorf("seed database: %w", err)
		}
	}

	var (
		store cache.Store
		hub   notify.Hub
	)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		store = cache.NewRedisStore(client)
		hub = notify.NewRedisHub(client)
	} else {
		mem, err := cache.NewMemoryStore(memoryCacheItems)
		if err != nil {
			return nil, fmt.Errorf("init memory cache: %w", err)
		}
		s.closers = append(s.closers, func() error { mem.Close(); return nil })
		store = mem
		hub = notify.NewMemoryHub()
	}
	notifier := notify.NewNotifier(db, hub, logger)

	authService, err := auth.NewFromConfig(cfg.Auth)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	var enqueuer tasks.Enqueuer
	if cfg.Worker.Mode == config.WorkerModeAsynq && cfg.Redis.Enabled {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		s.closers = append(s.closers, client.Close)
		enqueuer = tasks.NewAsynqEnqueuer(client)
	} else {
		s.inline = tasks.NewInlineEnqueuer(worker.NewServeMux(db, logger), logger)
		enqueuer = s.inline
		s.ticker = progress.New(
			progress.NewGormStore(db, notifier),
			cfg.Worker.TickerInterval,
			progress.WithStep(progress.RandomStep(cfg.Worker.MinStep, cfg.Worker.MaxStep)),
			progress.WithLogger(logger),
		)
	}

	deps := api.Deps{
		Config:   cfg,
		DB:       db,
		Auth:     authService,
		Cache:    store,
		Hub:      hub,
		Notifier: notifier,
		Enqueuer: enqueuer,
		Logger:   logger,
	}
	var schedOpts []scheduler.Option
	if cfg.MinIO.Enabled {
		exports, err := storage.NewClient(cfg.MinIO)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		deps.Exports = exports
		schedOpts = append(schedOpts, scheduler.WithExportPruner(exports, cfg.MinIO.ExportRetention))
	}
	deps.Scheduler = s.syncReloader(enqueuer, hub, schedOpts...)

	router, err := api.NewRouter(deps)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	s.Router = router
	return s, nil
}

// syncReloader 决定定时计划由哪个进程执行，同一时刻只能有一个调度器。
// 进程内模式由本进程持有调度器；asynq 模式由 worker 持有，本进程只广播重载。
func (s *Server) syncReloader(enqueuer tasks.Enqueuer, hub notify.Hub, opts ...scheduler.Option) api.SyncReloader {
	if !s.Config.Scheduler.Enabled {
		return nil
	}
	if s.inline == nil {
		return scheduler.NewRemoteReloader(hub)
	}
	s.scheduler = scheduler.New(s.DB, enqueuer, s.logger, opts...)
	return s.scheduler
}

// Start 启动调度器与（进程内模式下的）进度推进器，直到 Close 或 ctx 结束。
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx, s.Config.Scheduler.RetentionSpec); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if s.ticker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ticker.Run(ctx)
		}()
		s.logger.Info("progress ticker started", slog.Duration("interval", s.Config.Worker.TickerInterval))
	}
	return nil
}

// Close 停止后台循环并释放连接。
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.scheduler != nil && s.cancel != nil {
		s.scheduler.Stop()
	}
	if s.inline != nil {
		s.inline.Wait()
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		s.DB = nil
	}
	return errors.Join(errs...)
}

// MockConfig 返回控制台 mock 模式使用的配置：独立的内存 SQLite、无外部依赖、种子数据。
func MockConfig(base *config.Config) *config.Config {
	cfg := *base
	cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: database.MemoryDSN("console")}
	cfg.Redis.Enabled = false
	cfg.MinIO.Enabled = false
	cfg.Worker.Mode = config.WorkerModeInline
	cfg.Auth.CaptchaRequired = false
	cfg.API.Seed = true
	return &cfg
}
