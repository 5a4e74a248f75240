package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/notify"
)

// TaskHandler 当前用户的后台任务与通知。
type TaskHandler struct {
	db       *gorm.DB
	notifier *notify.Notifier
	now      func() time.Time
}

func NewTaskHandler(db *gorm.DB, notifier *notify.Notifier) *TaskHandler {
	return &TaskHandler{db: db, notifier: notifier, now: time.Now}
}

// ListTasks 返回当前用户的任务。
func (h *TaskHandler) ListTasks(c *gin.Context) {
	id, _ := middleware.IdentityFromContext(c)
	list := make([]database.BackgroundTask, 0)
	if err := h.db.WithContext(c.Request.Context()).Where("user_id = ?", id.UserID).
		Order("start_time DESC, id").Find(&list).Error; err != nil {
		reqLog(c).Error("list tasks failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}

type registerTaskRequest struct {
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	VectorID string `json:"vectorId"`
}

// RegisterTask 以给定进度登记一个进行中的任务，之后由进度推进器接管。
func (h *TaskHandler) RegisterTask(c *gin.Context) {
	var req registerTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		BadRequest(c, "任务名称不能为空")
		return
	}
	// 登记时不允许直接完成，完成通知只能由推进器发出
	progress := min(max(req.Progress, 0), 99)

	id, _ := middleware.IdentityFromContext(c)
	task := database.BackgroundTask{
		ID:        database.NewID("t"),
		Name:      req.Name,
		Status:    database.TaskInProgress,
		Progress:  progress,
		StartTime: h.now().UTC(),
		VectorID:  req.VectorID,
		UserID:    id.UserID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&task).Error; err != nil {
		reqLog(c).Error("register task failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	h.notifier.TaskUpdated(c.Request.Context(), task)
	OKMessage(c, "任务已转入后台", task)
}

// ListNotifications 返回当前用户的通知，新的在前。
func (h *TaskHandler) ListNotifications(c *gin.Context) {
	id, _ := middleware.IdentityFromContext(c)
	list := make([]database.Notification, 0)
	if err := h.db.WithContext(c.Request.Context()).Where("user_id = ?", id.UserID).
		Order("created_at DESC, id").Find(&list).Error; err != nil {
		reqLog(c).Error("list notifications failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}

// MarkAllRead 将当前用户的通知全部标为已读。
func (h *TaskHandler) MarkAllRead(c *gin.Context) {
	id, _ := middleware.IdentityFromContext(c)
	if err := h.db.WithContext(c.Request.Context()).Model(&database.Notification{}).
		Where("user_id = ? AND read = ?", id.UserID, false).Update("read", true).Error; err != nil {
		reqLog(c).Error("mark notifications read failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "已全部标为已读", nil)
}

// ClearNotifications 清空当前用户的通知。
func (h *TaskHandler) ClearNotifications(c *gin.Context) {
	id, _ := middleware.IdentityFromContext(c)
	if err := h.db.WithContext(c.Request.Context()).Where("user_id = ?", id.UserID).
		Delete(&database.Notification{}).Error; err != nil {
		reqLog(c).Error("clear notifications failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "通知已清空", nil)
}
