package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
)

// Enqueuer 投递后台任务。
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// AsynqEnqueuer 经 Redis 队列交给 worker 进程。
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	slog.Debug("task enqueued", slog.String("task_type", task.Type()), slog.String("task_id", info.ID))
	return nil
}

// InlineEnqueuer 在当前进程的协程中直接执行处理器，不依赖 Redis。
type InlineEnqueuer struct {
	handler asynq.Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewInlineEnqueuer(handler asynq.Handler, logger *slog.Logger) *InlineEnqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineEnqueuer{handler: handler, logger: logger}
}

// Enqueue 立即返回；处理器使用脱离请求生命周期的 context。
func (e *InlineEnqueuer) Enqueue(ctx context.Context, task *asynq.Task) error {
	runCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.handler.ProcessTask(runCtx, task); err != nil {
			e.logger.Error("inline task failed",
				slog.String("task_type", task.Type()),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

// Wait 等待所有已投递的任务结束。
func (e *InlineEnqueuer) Wait() {
	e.wg.Wait()
}
