package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/database"
)

// AuditLog 为已登录用户的写操作追加一条 operation 类型的系统日志，状态码 >= 400 记为失败。
func AuditLog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return
		}
		id, ok := IdentityFromContext(c)
		if !ok {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := database.LogSuccess
		if c.Writer.Status() >= http.StatusBadRequest {
			status = database.LogFailure
		}
		entry := database.SystemLog{
			ID:        database.NewID("log"),
			Action:    auditAction(c.Request.Method, path),
			Module:    auditModule(path),
			Type:      database.LogTypeOperation,
			User:      id.Username,
			IP:        c.ClientIP(),
			Details:   fmt.Sprintf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status()),
			Status:    status,
			Timestamp: time.Now().UTC(),
		}
		// 请求可能已被取消，日志仍需写入
		ctx := context.WithoutCancel(c.Request.Context())
		if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
			LoggerFromContext(c).Error("write audit log failed", slog.Any("error", err))
		}
	}
}

// auditModule 取路由去掉 /api 前缀后的第一段，例如 /api/vectors/:id -> vectors。
func auditModule(path string) string {
	path = strings.TrimPrefix(path, "/api")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "core"
	}
	return segments[0]
}

// auditAction 例如 DELETE /api/vectors/:id -> VECTORS_DELETE。
func auditAction(method, path string) string {
	return strings.ToUpper(auditModule(path)) + "_" + method
}
