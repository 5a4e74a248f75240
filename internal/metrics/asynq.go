package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务处理结果
const (
	ResultOK      = "ok"
	ResultRetry   = "retry"
	ResultSkipped = "skipped"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectoradmin",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "按结果统计的向量索引、同步任务数量。",
		},
		[]string{"task_type", "result"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vectoradmin",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "单个任务的处理耗时（秒）。",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"task_type"},
	)

	jobsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vectoradmin",
			Subsystem: "jobs",
			Name:      "running",
			Help:      "正在处理的任务数量。",
		},
		[]string{"task_type"},
	)
)

// JobResult 把处理器返回的错误归类。SkipRetry 表示数据已不存在或无需重试。
func JobResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, asynq.SkipRetry):
		return ResultSkipped
	default:
		return ResultRetry
	}
}

// JobMetrics 包裹向量任务处理器，inline 模式下同样生效。
func JobMetrics() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			running := jobsRunning.WithLabelValues(taskType)
			running.Inc()
			defer running.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			jobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			jobsTotal.WithLabelValues(taskType, JobResult(err)).Inc()
			return err
		})
	}
}
