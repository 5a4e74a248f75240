package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/sysinfo"
	"vectorAdmin/internal/vector"
)

const (
	statsCacheKey = "dashboard:stats"
	statsCacheTTL = 10 * time.Second
	trendDays     = 7
)

// DashboardStats 仪表盘汇总指标。
type DashboardStats struct {
	TotalVectors int64        `json:"totalVectors"`
	DailyQueries int64        `json:"dailyQueries"`
	ActiveNodes  int          `json:"activeNodes"`
	Errors       int64        `json:"errors"`
	Trend        []TrendPoint `json:"trend"`
}

// TrendPoint 按天统计的请求量。
type TrendPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DashboardHandler 仪表盘接口。统计结果在进程内缓存 10 秒。
type DashboardHandler struct {
	db      *gorm.DB
	sampler sysinfo.Sampler
	cache   *ristretto.Cache[string, DashboardStats]
	now     func() time.Time
}

func NewDashboardHandler(db *gorm.DB, sampler sysinfo.Sampler) (*DashboardHandler, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, DashboardStats]{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init stats cache: %w", err)
	}
	return &DashboardHandler{db: db, sampler: sampler, cache: c, now: time.Now}, nil
}

// Stats 并行汇总向量数、24 小时请求量、节点数、异常数与近 7 天趋势。
func (h *DashboardHandler) Stats(c *gin.Context) {
	if stats, ok := h.cache.Get(statsCacheKey); ok {
		OK(c, stats)
		return
	}
	stats, err := h.collect(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("collect dashboard stats failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	h.cache.SetWithTTL(statsCacheKey, stats, 1, statsCacheTTL)
	h.cache.Wait()
	OK(c, stats)
}

func (h *DashboardHandler) collect(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	now := h.now().UTC()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.db.WithContext(gctx).Model(&database.VectorItem{}).Count(&stats.TotalVectors).Error
	})
	g.Go(func() error {
		return h.db.WithContext(gctx).Model(&database.SystemLog{}).
			Where("logged_at >= ?", now.Add(-24*time.Hour)).Count(&stats.DailyQueries).Error
	})
	g.Go(func() error {
		return h.db.WithContext(gctx).Model(&database.VectorItem{}).
			Where("status = ?", vector.StatusError).Count(&stats.Errors).Error
	})
	g.Go(func() error {
		nodes, err := h.sampler.Nodes(gctx)
		if err != nil {
			return err
		}
		stats.ActiveNodes = countActive(nodes)
		return nil
	})
	g.Go(func() error {
		trend, err := h.trend(gctx, now)
		stats.Trend = trend
		return err
	})

	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}
	return stats, nil
}

func (h *DashboardHandler) trend(ctx context.Context, now time.Time) ([]TrendPoint, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(trendDays - 1))
	var times []time.Time
	if err := h.db.WithContext(ctx).Model(&database.SystemLog{}).
		Where("logged_at >= ?", start).Pluck("logged_at", &times).Error; err != nil {
		return nil, err
	}
	points := make([]TrendPoint, trendDays)
	for i := range points {
		points[i].Date = start.AddDate(0, 0, i).Format(time.DateOnly)
	}
	for _, t := range times {
		day := int(t.UTC().Sub(start) / (24 * time.Hour))
		if day >= 0 && day < trendDays {
			points[day].Count++
		}
	}
	return points, nil
}

func countActive(nodes []sysinfo.Node) int {
	n := 0
	for _, node := range nodes {
		if node.Status == "active" {
			n++
		}
	}
	return n
}

// Resources 返回主机 CPU、内存、磁盘使用率。
func (h *DashboardHandler) Resources(c *gin.Context) {
	res, err := h.sampler.Resources(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("sample resources failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, res)
}

// Nodes 返回节点状态列表。
func (h *DashboardHandler) Nodes(c *gin.Context) {
	nodes, err := h.sampler.Nodes(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("sample nodes failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, nodes)
}

// Tasks 按开始时间倒序返回后台任务。
func (h *DashboardHandler) Tasks(c *gin.Context) {
	var tasks []database.BackgroundTask
	if err := h.db.WithContext(c.Request.Context()).Order("start_time DESC").Find(&tasks).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list tasks failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, tasks)
}
