// Package scheduler 基于 robfig/cron 调度向量集定时同步与日志保留清理。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"vectorAdmin/internal/database"
	"vectorAdmin/internal/tasks"
)

// DefaultRetentionDays 未配置保留天数时使用。
const DefaultRetentionDays = 30

// ExportPruner 清理对象存储中过期的导出文件，*storage.Client 实现了该接口。
type ExportPruner interface {
	PruneExports(ctx context.Context, retention time.Duration, now time.Time) (int, error)
}

// Option 调整调度器。
type Option func(*Scheduler)

// WithExportPruner 在日志保留任务中顺带清理导出文件。
func WithExportPruner(p ExportPruner, retention time.Duration) Option {
	return func(s *Scheduler) {
		s.exports = p
		s.exportRetention = retention
	}
}

// Scheduler 每个启用了定时同步的向量集对应一个 cron 条目。
type Scheduler struct {
	db       *gorm.DB
	enqueuer tasks.Enqueuer
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time

	exports         ExportPruner
	exportRetention time.Duration

	mu         sync.Mutex
	activeJobs map[string]scheduledJob
}

type scheduledJob struct {
	entryID    cron.EntryID
	expression string
}

func New(db *gorm.DB, enqueuer tasks.Enqueuer, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		db:         db,
		enqueuer:   enqueuer,
		logger:     logger,
		cron:       cron.New(),
		now:        time.Now,
		activeJobs: map[string]scheduledJob{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 注册保留清理任务，加载同步计划并启动 cron。
func (s *Scheduler) Start(ctx context.Context, retentionSpec string) error {
	if retentionSpec != "" {
		if _, err := s.cron.AddFunc(retentionSpec, func() {
			ctx := context.Background()
			if _, err := s.PurgeLogs(ctx); err != nil {
				s.logger.Error("purge logs failed", slog.Any("error", err))
			}
			if _, err := s.PruneExports(ctx); err != nil {
				s.logger.Error("prune exports failed", slog.Any("error", err))
			}
		}); err != nil {
			return fmt.Errorf("schedule log retention: %w", err)
		}
	}
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop 停止调度并等待运行中的任务结束。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reload 按数据库中的同步配置增删改 cron 条目。
func (s *Scheduler) Reload(ctx context.Context) error {
	var items []database.VectorItem
	if err := s.db.WithContext(ctx).Select("id", "title", "cron_config", "is_enabled").Find(&items).Error; err != nil {
		return fmt.Errorf("load vector sync configs: %w", err)
	}

	wanted := map[string]string{}
	for _, item := range items {
		cfg := item.CronConfig.Data()
		if !cfg.Enabled || !item.IsEnabled || cfg.Expression == "" {
			continue
		}
		wanted[item.ID] = cfg.Expression
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.activeJobs {
		if expr, ok := wanted[id]; !ok || expr != job.expression {
			s.cron.Remove(job.entryID)
			delete(s.activeJobs, id)
		}
	}
	for id, expr := range wanted {
		if _, ok := s.activeJobs[id]; ok {
			continue
		}
		vectorID := id
		entryID, err := s.cron.AddFunc(expr, func() { s.enqueueSync(vectorID) })
		if err != nil {
			s.logger.Warn("skip invalid sync schedule",
				slog.String("vector_id", vectorID),
				slog.String("expression", expr),
				slog.Any("error", err),
			)
			continue
		}
		s.activeJobs[vectorID] = scheduledJob{entryID: entryID, expression: expr}
	}

	s.logger.Info("sync schedules reloaded", slog.Int("count", len(s.activeJobs)))
	return nil
}

// Scheduled 返回已登记的向量集及其下次执行时间。
func (s *Scheduler) Scheduled() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.activeJobs))
	for id, job := range s.activeJobs {
		out[id] = s.cron.Entry(job.entryID).Next
	}
	return out
}

func (s *Scheduler) enqueueSync(vectorID string) {
	task, err := tasks.NewVectorSyncTask(vectorID, "cron")
	if err != nil {
		s.logger.Error("build sync task failed", slog.Any("error", err))
		return
	}
	if err := s.enqueuer.Enqueue(context.Background(), task); err != nil {
		s.logger.Error("enqueue sync task failed",
			slog.String("vector_id", vectorID),
			slog.Any("error", err),
		)
	}
}

// RetentionDays 读取日志保留天数配置。
func RetentionDays(ctx context.Context, db *gorm.DB) int {
	var setting database.Setting
	if err := db.WithContext(ctx).First(&setting, "key = ?", database.SettingLogRetentionDays).Error; err != nil {
		return DefaultRetentionDays
	}
	days, err := strconv.Atoi(setting.Value)
	if err != nil || days <= 0 {
		return DefaultRetentionDays
	}
	return days
}

// PurgeLogs 删除超过保留天数的系统日志，返回删除条数。
func (s *Scheduler) PurgeLogs(ctx context.Context) (int64, error) {
	days := RetentionDays(ctx, s.db)
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	res := s.db.WithContext(ctx).Where("logged_at < ?", cutoff).Delete(&database.SystemLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge logs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("system logs purged",
			slog.Int64("deleted", res.RowsAffected),
			slog.Int("retention_days", days),
		)
	}
	return res.RowsAffected, nil
}

// PruneExports 删除过期的导出文件。未配置对象存储时什么也不做。
func (s *Scheduler) PruneExports(ctx context.Context) (int, error) {
	if s.exports == nil || s.exportRetention <= 0 {
		return 0, nil
	}
	deleted, err := s.exports.PruneExports(ctx, s.exportRetention, s.now())
	if deleted > 0 {
		s.logger.Info("expired exports removed",
			slog.Int("deleted", deleted),
			slog.Duration("retention", s.exportRetention),
		)
	}
	if err != nil {
		return deleted, fmt.Errorf("prune exports: %w", err)
	}
	return deleted, nil
}
