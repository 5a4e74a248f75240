package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"vectorAdmin/internal/database"
	"vectorAdmin/internal/tasks"
	"vectorAdmin/internal/vector"
)

// SyncHandler 消费 vector:sync 任务，为已启用的向量集创建一次同步任务。
type SyncHandler struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSyncHandler(db *gorm.DB, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{db: db, logger: logger, now: time.Now}
}

// SyncTaskName 同步任务的展示名。
func SyncTaskName(title string) string {
	return "同步: " + title
}

// ProcessTask 实现 asynq.Handler。
func (h *SyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.VectorSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal sync payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	log := h.logger.With(
		slog.String("request_id", payload.RequestID),
		slog.String("vector_id", payload.VectorID),
	)

	var item database.VectorItem
	if err := h.db.WithContext(ctx).First(&item, "id = ?", payload.VectorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("vector not found, skipping sync")
			return nil
		}
		return fmt.Errorf("load vector: %w", err)
	}
	if !item.IsEnabled {
		log.Info("vector disabled, skipping sync")
		return nil
	}

	// 同一向量集已有同步在进行时不重复创建
	var running int64
	if err := h.db.WithContext(ctx).Model(&database.BackgroundTask{}).
		Where("vector_id = ? AND status = ?", item.ID, database.TaskInProgress).
		Count(&running).Error; err != nil {
		return fmt.Errorf("count running tasks: %w", err)
	}
	if running > 0 {
		log.Info("vector already syncing, skipping")
		return nil
	}

	task := database.BackgroundTask{
		ID:        database.NewID("t"),
		Name:      SyncTaskName(item.Title),
		Status:    database.TaskInProgress,
		StartTime: h.now().UTC(),
		VectorID:  item.ID,
	}
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("create sync task: %w", err)
		}
		return tx.Model(&database.VectorItem{}).Where("id = ?", item.ID).
			Update("status", vector.StatusPending).Error
	})
	if err != nil {
		log.Error("start sync failed", slog.Any("error", err))
		return err
	}

	log.Info("sync task created", slog.String("task_id", task.ID))
	return nil
}
