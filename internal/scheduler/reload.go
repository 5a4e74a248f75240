package scheduler

import (
	"context"
	"log/slog"

	"vectorAdmin/internal/notify"
)

// ReloadTopic 是同步计划重载广播使用的频道键。
const ReloadTopic = "scheduler_reload"

// RemoteReloader 由不持有调度器的 API 进程使用，把重载请求广播给 worker。
type RemoteReloader struct {
	hub notify.Hub
}

func NewRemoteReloader(hub notify.Hub) *RemoteReloader {
	return &RemoteReloader{hub: hub}
}

func (r *RemoteReloader) Reload(ctx context.Context) error {
	return r.hub.Publish(ctx, ReloadTopic, []byte("reload"))
}

// ListenReload 订阅重载广播，每收到一次就按数据库重新加载，直到 ctx 结束。
func (s *Scheduler) ListenReload(ctx context.Context, hub notify.Hub) error {
	ch, cancel, err := hub.Subscribe(ctx, ReloadTopic)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Reload(ctx); err != nil {
				s.logger.Error("reload sync schedules failed", slog.Any("error", err))
			}
		}
	}
}
