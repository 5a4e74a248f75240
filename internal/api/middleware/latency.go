package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// SimulatedLatency 在处理请求前等待固定时长；客户端断开时提前结束。
func SimulatedLatency(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-c.Request.Context().Done():
				timer.Stop()
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
