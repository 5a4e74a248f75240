package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"vectorAdmin/internal/database"
)

// 推送给前端的消息类型。
const (
	MessageNotification = "notification"
	MessageTaskUpdate   = "task_update"
)

// Message 统一的 WebSocket 消息协议。
type Message struct {
	Type         string                   `json:"type"`
	Notification *database.Notification   `json:"notification,omitempty"`
	Task         *database.BackgroundTask `json:"task,omitempty"`
}

// Notifier 写入通知表并推送给对应用户。
type Notifier struct {
	db     *gorm.DB
	hub    Hub
	logger *slog.Logger
	now    func() time.Time
}

func NewNotifier(db *gorm.DB, hub Hub, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{db: db, hub: hub, logger: logger, now: time.Now}
}

// Notify 持久化后推送；推送失败只记录日志，通知仍可通过列表接口获取。
func (n *Notifier) Notify(ctx context.Context, userID, title, message, kind string) (*database.Notification, error) {
	record := database.Notification{
		ID:        database.NewID("n"),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      kind,
		CreatedAt: n.now().UTC(),
	}
	if err := n.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	n.publish(ctx, userID, Message{Type: MessageNotification, Notification: &record})
	return &record, nil
}

// TaskUpdated 推送任务进度变化，不落库。
func (n *Notifier) TaskUpdated(ctx context.Context, task database.BackgroundTask) {
	if task.UserID == "" {
		return
	}
	n.publish(ctx, task.UserID, Message{Type: MessageTaskUpdate, Task: &task})
}

func (n *Notifier) publish(ctx context.Context, userID string, msg Message) {
	if n.hub == nil || userID == "" {
		return
	}
	payload, err := encode(msg)
	if err != nil {
		n.logger.Error("encode notify message failed", slog.Any("error", err))
		return
	}
	if err := n.hub.Publish(ctx, userID, payload); err != nil {
		n.logger.Warn("publish notify message failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}
