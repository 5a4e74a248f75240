// Package progress 周期性推进进行中的后台任务，并在完成时发出通知。
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"vectorAdmin/internal/metrics"
)

// 完成通知的文案。
const (
	CompletedTitle = "后台任务完成"
)

// CompletedMessage 返回任务完成通知的正文。
func CompletedMessage(taskName string) string {
	return fmt.Sprintf("任务 \"%s\" 已成功执行完毕。", taskName)
}

// Task 推进器关心的任务字段。
type Task struct {
	ID       string
	Name     string
	Progress int
	VectorID string
	UserID   string
}

// TaskStore 抽象任务的读取与更新，服务端与控制台各有实现。
type TaskStore interface {
	InProgress(ctx context.Context) ([]Task, error)
	Advance(ctx context.Context, task Task, progress int) error
	// Complete 将任务置为完成（进度 100）并恰好发出一条通知。
	Complete(ctx context.Context, task Task) error
}

// Ticker 每个周期给每个进行中的任务加上一个随机步长，到达 100 时完成。
type Ticker struct {
	store    TaskStore
	interval time.Duration
	step     func() int
	logger   *slog.Logger
}

// Option 调整 Ticker 的可选参数。
type Option func(*Ticker)

// WithStep 替换步长函数，测试中用于固定步长。
func WithStep(step func() int) Option {
	return func(t *Ticker) { t.step = step }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Ticker) { t.logger = logger }
}

// New 默认每 1.5 秒推进 5 到 15。
func New(store TaskStore, interval time.Duration, opts ...Option) *Ticker {
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	t := &Ticker{
		store:    store,
		interval: interval,
		step:     RandomStep(5, 15),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RandomStep 返回 [min, max] 闭区间内的随机步长函数。
func RandomStep(min, max int) func() int {
	if max < min {
		max = min
	}
	return func() int {
		return min + rand.IntN(max-min+1)
	}
}

// Tick 执行一次推进。单个任务失败不影响其他任务，返回第一个错误。
func (t *Ticker) Tick(ctx context.Context) error {
	tasks, err := t.store.InProgress(ctx)
	if err != nil {
		return fmt.Errorf("load in-progress tasks: %w", err)
	}
	metrics.ObserveTick(len(tasks))

	var firstErr error
	for _, task := range tasks {
		next := task.Progress + t.step()
		if next >= 100 {
			err = t.store.Complete(ctx, task)
			if err == nil {
				metrics.TaskCompleted()
				t.logger.Info("background task completed",
					slog.String("task_id", task.ID),
					slog.String("task_name", task.Name),
				)
			}
		} else {
			err = t.store.Advance(ctx, task, next)
		}
		if err != nil {
			t.logger.Error("advance background task failed",
				slog.String("task_id", task.ID),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run 按周期调用 Tick，直到 ctx 结束。
func (t *Ticker) Run(ctx context.Context) {
	timer := time.NewTicker(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			_ = t.Tick(ctx)
		}
	}
}
