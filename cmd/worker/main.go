package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/logging"
	"vectorAdmin/internal/notify"
	"vectorAdmin/internal/progress"
	"vectorAdmin/internal/scheduler"
	"vectorAdmin/internal/storage"
	"vectorAdmin/internal/tasks"
	"vectorAdmin/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	if !cfg.Redis.Enabled {
		log.Fatal("worker requires redis (REDIS_ENABLED=true)")
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	notifier := notify.NewNotifier(db, notify.NewRedisHub(redisClient), logger)
	ticker := progress.New(
		progress.NewGormStore(db, notifier),
		cfg.Worker.TickerInterval,
		progress.WithStep(progress.RandomStep(cfg.Worker.MinStep, cfg.Worker.MaxStep)),
		progress.WithLogger(logger),
	)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})
	mux := worker.NewServeMux(db, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(mux); err != nil {
			return err
		}
		<-gctx.Done()
		srv.Shutdown()
		return nil
	})
	g.Go(func() error {
		ticker.Run(gctx)
		return nil
	})
	if cfg.Scheduler.Enabled {
		var schedOpts []scheduler.Option
		if cfg.MinIO.Enabled {
			exports, err := storage.NewClient(cfg.MinIO)
			if err != nil {
				log.Fatalf("init storage client: %v", err)
			}
			schedOpts = append(schedOpts, scheduler.WithExportPruner(exports, cfg.MinIO.ExportRetention))
		}
		sched := scheduler.New(db, tasks.NewAsynqEnqueuer(client), logger, schedOpts...)
		if err := sched.Start(gctx, cfg.Scheduler.RetentionSpec); err != nil {
			log.Fatalf("start scheduler: %v", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			sched.Stop()
			return nil
		})
		// API 进程修改同步配置后经 Redis 广播重载
		g.Go(func() error {
			return sched.ListenReload(gctx, notify.NewRedisHub(redisClient))
		})
	}

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Duration("ticker_interval", cfg.Worker.TickerInterval),
	)
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
	}
}

// asynqLogger 把 asynq 的日志转到 slog。
type asynqLogger struct{ l *slog.Logger }

func newAsynqLogger(l *slog.Logger) asynqLogger {
	return asynqLogger{l: l.With(slog.String("component", "asynq"))}
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
