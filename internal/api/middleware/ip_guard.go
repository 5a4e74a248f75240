package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/database"
)

// IPGuard 拦截黑名单 IP，并累计已登记 IP 的访问次数。未登记的 IP 直接放行。
func IPGuard(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		var record database.IPRecord
		err := db.WithContext(ctx).Where("ip = ?", ip).Limit(1).Find(&record).Error
		if err != nil {
			LoggerFromContext(c).Warn("ip lookup failed", slog.String("ip", ip), slog.Any("error", err))
			c.Next()
			return
		}
		if record.ID == "" {
			c.Next()
			return
		}
		if record.Status == database.IPBlocked {
			LoggerFromContext(c).Info("blocked ip rejected", slog.String("ip", ip))
			abort(c, http.StatusForbidden)
			return
		}

		now := time.Now().UTC()
		if err := db.WithContext(ctx).Model(&database.IPRecord{}).Where("id = ?", record.ID).
			UpdateColumns(map[string]any{
				"access_count": gorm.Expr("access_count + 1"),
				"last_access":  now,
			}).Error; err != nil {
			LoggerFromContext(c).Warn("ip access count update failed", slog.Any("error", err))
		}
		c.Next()
	}
}
