package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"vectorAdmin/internal/database"
	"vectorAdmin/internal/tasks"
	"vectorAdmin/internal/vector"
)

// IndexHandler 消费 vector:index 任务：向量集置为 pending，任务置为进行中，
// 后续进度由 progress.Ticker 推进。
type IndexHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewIndexHandler(db *gorm.DB, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{db: db, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *IndexHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.VectorIndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal index payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("request_id", payload.RequestID),
		slog.String("vector_id", payload.VectorID),
		slog.String("task_id", payload.TaskID),
	)

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item database.VectorItem
		if err := tx.Select("id").First(&item, "id = ?", payload.VectorID).Error; err != nil {
			return err
		}
		// 转入后台的任务可能在投递前就已被推进到完成，此时向量集直接视为已索引
		status := vector.StatusPending
		var task database.BackgroundTask
		if err := tx.Select("id", "status").First(&task, "id = ?", payload.TaskID).Error; err == nil && task.Status == database.TaskCompleted {
			status = vector.StatusIndexed
		}
		if err := tx.Model(&database.VectorItem{}).
			Where("id = ?", payload.VectorID).
			Update("status", status).Error; err != nil {
			return fmt.Errorf("mark vector %s: %w", status, err)
		}
		// 已经在进行中的任务（例如从向导转入后台）保持原有进度
		if err := tx.Model(&database.BackgroundTask{}).
			Where("id = ? AND status = ?", payload.TaskID, database.TaskPending).
			Update("status", database.TaskInProgress).Error; err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("vector not found, skipping index task")
		return nil
	}
	if err != nil {
		log.Error("start index task failed", slog.Any("error", err))
		return err
	}

	log.Info("index task started")
	return nil
}
