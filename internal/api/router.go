package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/cache"
	"vectorAdmin/internal/config"
	"vectorAdmin/internal/metrics"
	"vectorAdmin/internal/notify"
	"vectorAdmin/internal/sysinfo"
	"vectorAdmin/internal/tasks"
)

// Deps 汇总路由所需的依赖。Scheduler 与 Exports 可以为空。
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Auth      *auth.AuthService
	Cache     cache.Store
	Hub       notify.Hub
	Notifier  *notify.Notifier
	Enqueuer  tasks.Enqueuer
	Scheduler SyncReloader
	Exports   ExportStore
	Sampler   sysinfo.Sampler
	// Captcha 为空时基于 Cache 创建。
	Captcha *auth.CaptchaService
	Logger  *slog.Logger
}

// NewRouter 构建 Gin 引擎：公共中间件、/health、/metrics，以及挂在 /api 与根路径下的同一套业务路由。
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Captcha == nil {
		deps.Captcha = auth.NewCaptchaService(deps.Cache, deps.Config.Auth.CaptchaTTL)
	}
	if deps.Sampler == nil {
		deps.Sampler = sysinfo.NewHostSampler("/")
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		cors.New(corsConfig(deps.Config.API.AllowedOrigins)),
		middleware.RequestID(),
		middleware.RequestLogger(deps.Logger),
		metrics.RequestMetrics(),
	)

	router.GET("/health", func(c *gin.Context) {
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			Error(c, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h, err := newHandlers(deps)
	if err != nil {
		return nil, err
	}
	RegisterRoutes(router.Group("/api"), h, deps)
	RegisterRoutes(router.Group(""), h, deps)

	notFound := func(c *gin.Context) { NotFound(c, "API Endpoint Not Found") }
	router.NoRoute(notFound)
	router.HandleMethodNotAllowed = true
	router.NoMethod(notFound)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// AllowAllOrigins 与 AllowCredentials 不能同时使用
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

type handlers struct {
	auth      *AuthHandler
	profile   *ProfileHandler
	dashboard *DashboardHandler
	vectors   *VectorHandler
	search    *SearchHandler
	settings  *SettingsHandler
	security  *SecurityHandler
	tasks     *TaskHandler
	ws        *WsHandler
}

func newHandlers(deps Deps) (*handlers, error) {
	cfg := deps.Config
	dashboard, err := NewDashboardHandler(deps.DB, deps.Sampler)
	if err != nil {
		return nil, fmt.Errorf("dashboard handler: %w", err)
	}
	guard := auth.NewLoginGuard(deps.Cache, cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL)
	return &handlers{
		auth:      NewAuthHandler(deps.DB, deps.Auth, deps.Cache, deps.Captcha, guard, cfg.Auth, deps.Logger),
		profile:   NewProfileHandler(deps.DB),
		dashboard: dashboard,
		vectors:   NewVectorHandler(deps.DB, deps.Enqueuer, deps.Scheduler, deps.Exports),
		search:    NewSearchHandler(deps.DB),
		settings:  NewSettingsHandler(deps.DB),
		security:  NewSecurityHandler(deps.DB),
		tasks:     NewTaskHandler(deps.DB, deps.Notifier),
		ws:        NewWsHandler(deps.Hub, deps.Auth, deps.Logger, cfg.API.AllowedOrigins),
	}, nil
}
