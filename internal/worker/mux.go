package worker

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"vectorAdmin/internal/metrics"
	"vectorAdmin/internal/tasks"
)

// NewServeMux 注册全部任务处理器。asynq server 与 InlineEnqueuer 共用。
func NewServeMux(db *gorm.DB, logger *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(metrics.JobMetrics())
	mux.Handle(tasks.TypeVectorIndex, NewIndexHandler(db, logger))
	mux.Handle(tasks.TypeVectorSync, NewSyncHandler(db, logger))
	return mux
}
