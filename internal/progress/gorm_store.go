package progress

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"vectorAdmin/internal/database"
	"vectorAdmin/internal/vector"
)

// Notifier 由 notify.Notifier 实现。
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, kind string) (*database.Notification, error)
	TaskUpdated(ctx context.Context, task database.BackgroundTask)
}

// GormStore 基于数据库的任务存储，由 worker 进程或 inline 模式下的 api 进程持有。
type GormStore struct {
	db       *gorm.DB
	notifier Notifier
}

func NewGormStore(db *gorm.DB, notifier Notifier) *GormStore {
	return &GormStore{db: db, notifier: notifier}
}

func (s *GormStore) InProgress(ctx context.Context) ([]Task, error) {
	var rows []database.BackgroundTask
	if err := s.db.WithContext(ctx).
		Where("status = ?", database.TaskInProgress).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, Task{
			ID:       row.ID,
			Name:     row.Name,
			Progress: row.Progress,
			VectorID: row.VectorID,
			UserID:   row.UserID,
		})
	}
	return tasks, nil
}

func (s *GormStore) Advance(ctx context.Context, task Task, progress int) error {
	res := s.db.WithContext(ctx).Model(&database.BackgroundTask{}).
		Where("id = ? AND status = ?", task.ID, database.TaskInProgress).
		Update("progress", progress)
	if res.Error != nil {
		return fmt.Errorf("update task %s progress: %w", task.ID, res.Error)
	}
	if res.RowsAffected > 0 && s.notifier != nil {
		s.notifier.TaskUpdated(ctx, database.BackgroundTask{
			ID: task.ID, Name: task.Name, Status: database.TaskInProgress,
			Progress: progress, VectorID: task.VectorID, UserID: task.UserID,
		})
	}
	return nil
}

// Complete 仅当任务仍处于进行中时才更新，保证并发推进下只通知一次。
func (s *GormStore) Complete(ctx context.Context, task Task) error {
	var completed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.BackgroundTask{}).
			Where("id = ? AND status = ?", task.ID, database.TaskInProgress).
			Updates(map[string]any{"progress": 100, "status": database.TaskCompleted})
		if res.Error != nil {
			return fmt.Errorf("complete task %s: %w", task.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		completed = true
		if task.VectorID == "" {
			return nil
		}
		if err := tx.Model(&database.VectorItem{}).
			Where("id = ?", task.VectorID).
			Update("status", vector.StatusIndexed).Error; err != nil {
			return fmt.Errorf("mark vector %s indexed: %w", task.VectorID, err)
		}
		return nil
	})
	if err != nil || !completed {
		return err
	}

	if s.notifier == nil {
		return nil
	}
	s.notifier.TaskUpdated(ctx, database.BackgroundTask{
		ID: task.ID, Name: task.Name, Status: database.TaskCompleted,
		Progress: 100, VectorID: task.VectorID, UserID: task.UserID,
	})
	if _, err := s.notifier.Notify(ctx, task.UserID, CompletedTitle, CompletedMessage(task.Name), database.NotifySuccess); err != nil {
		return fmt.Errorf("notify task %s completed: %w", task.ID, err)
	}
	return nil
}
