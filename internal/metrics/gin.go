package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vectoradmin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "按业务模块统计的接口耗时（秒），包含 mock 延迟。",
			Buckets:   []float64{.01, .05, .1, .2, .3, .5, 1, 2.5, 5},
		},
		[]string{"module", "method", "route"},
	)

	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectoradmin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "接口请求总数。",
		},
		[]string{"module", "method", "route", "status"},
	)

	requestDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectoradmin",
			Subsystem: "http",
			Name:      "denied_total",
			Help:      "被鉴权、权限或 IP 拦截拒绝的请求数。",
		},
		[]string{"module", "reason"},
	)
)

// 拒绝原因
const (
	DeniedUnauthenticated = "unauthenticated"
	DeniedForbidden       = "forbidden"
	DeniedThrottled       = "throttled"
)

// RouteLabel 去掉 /api 前缀，使两个挂载点共用同一组指标。未匹配的路由统一归为 unmatched。
func RouteLabel(fullPath string) string {
	if fullPath == "" {
		return "unmatched"
	}
	route := strings.TrimPrefix(fullPath, "/api")
	if route == "" {
		return "/"
	}
	return route
}

// RouteModule 取路由的第一段作为业务模块，例如 /vectors/:id 属于 vectors。
func RouteModule(route string) string {
	seg := strings.TrimPrefix(route, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if seg == "" || strings.HasPrefix(seg, ":") {
		return "root"
	}
	return seg
}

func deniedReason(status int) string {
	switch status {
	case 401:
		return DeniedUnauthenticated
	case 403:
		return DeniedForbidden
	case 429:
		return DeniedThrottled
	}
	return ""
}

// RequestMetrics 采集每个接口的耗时与状态码，并单独统计被拒绝的请求。
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := RouteLabel(c.FullPath())
		module := RouteModule(route)
		status := c.Writer.Status()

		requestDuration.WithLabelValues(module, c.Request.Method, route).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(module, c.Request.Method, route, strconv.Itoa(status)).Inc()
		if reason := deniedReason(status); reason != "" {
			requestDenied.WithLabelValues(module, reason).Inc()
		}
	}
}
