package api

import (
	"github.com/gin-gonic/gin"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/auth"
)

// RegisterRoutes 在 group 下注册业务路由。角色要求与控制台路由表一致。
func RegisterRoutes(group *gin.RouterGroup, h *handlers, deps Deps) {
	writers := middleware.RequireRoles(auth.RoleAdmin, auth.RoleEditor)
	adminOnly := middleware.RequireRoles(auth.RoleAdmin)

	group.GET("/ws", h.ws.HandleConnection)

	api := group.Group("",
		middleware.IPGuard(deps.DB),
		middleware.SimulatedLatency(deps.Config.API.SimulatedLatency),
	)

	authGroup := api.Group("/auth")
	{
		authGroup.GET("/captcha", h.auth.Captcha)
		authGroup.POST("/login", h.auth.Login)
		authGroup.POST("/refresh", h.auth.Refresh)
	}

	secured := api.Group("", middleware.AuthMiddleware(deps.Auth), middleware.ActiveUser(deps.DB), middleware.AuditLog(deps.DB))
	secured.POST("/auth/logout", h.auth.Logout)
	secured.GET("/auth/me", h.auth.Me)

	profile := secured.Group("/profile")
	{
		profile.GET("", h.profile.Get)
		profile.PUT("", h.profile.Update)
		profile.PUT("/password", h.profile.ChangePassword)
	}

	dashboard := secured.Group("/dashboard")
	{
		dashboard.GET("/stats", h.dashboard.Stats)
		dashboard.GET("/resources", h.dashboard.Resources)
		dashboard.GET("/tasks", h.dashboard.Tasks)
		dashboard.GET("/nodes", h.dashboard.Nodes)
	}

	// 下拉列表供向量搜索页使用，对所有登录用户开放
	secured.GET("/vectors/simple-list", h.vectors.SimpleList)
	vectors := secured.Group("/vectors", writers)
	{
		vectors.GET("", h.vectors.List)
		vectors.POST("", h.vectors.Create)
		vectors.DELETE("", h.vectors.BatchDelete)
		vectors.POST("/check-name", h.vectors.CheckName)
		vectors.GET("/export", h.vectors.Export)
		vectors.POST("/export", h.vectors.Export)
		vectors.GET("/wizard/databases", h.vectors.Databases)
		vectors.GET("/wizard/tables", h.vectors.Tables)
		vectors.GET("/wizard/fields", h.vectors.Fields)
		vectors.GET("/:id", h.vectors.Get)
		vectors.PUT("/:id", h.vectors.UpdateTitle)
		vectors.DELETE("/:id", h.vectors.Delete)
		vectors.PUT("/:id/status", h.vectors.UpdateStatus)
		vectors.POST("/:id/sync-config", h.vectors.SyncConfig)
	}

	secured.POST("/search/vector", h.search.Vector)
	secured.POST("/kb/retrieval", h.search.Retrieval)
	secured.GET("/kb/config", writers, h.search.GetKBConfig)
	secured.PUT("/kb/config", writers, h.search.UpdateKBConfig)
	secured.POST("/tools/llm-clean", writers, h.search.LLMClean)

	secured.GET("/tasks", h.tasks.ListTasks)
	secured.POST("/tasks", h.tasks.RegisterTask)
	secured.GET("/notifications", h.tasks.ListNotifications)
	secured.PUT("/notifications/read-all", h.tasks.MarkAllRead)
	secured.DELETE("/notifications", h.tasks.ClearNotifications)

	settings := secured.Group("/settings", adminOnly)
	{
		settings.GET("/menus", h.settings.ListMenus)
		settings.PUT("/menus/:id", h.settings.UpdateMenu)

		settings.GET("/roles", h.settings.ListRoles)
		settings.POST("/roles", h.settings.CreateRole)
		settings.PUT("/roles/:id", h.settings.UpdateRole)
		settings.PUT("/roles/:id/permissions", h.settings.UpdatePermissions)
		settings.DELETE("/roles/:id", h.settings.DeleteRole)

		settings.GET("/users", h.settings.ListUsers)
		settings.POST("/users", h.settings.CreateUser)
		settings.PUT("/users/:id", h.settings.UpdateUser)
		settings.PUT("/users/:id/status", h.settings.UpdateUserStatus)
		settings.DELETE("/users/:id", h.settings.DeleteUser)

		settings.GET("/ips", h.security.ListIPs)
		settings.POST("/ips", h.security.AddIP)
		settings.PUT("/ips/:id/status", h.security.UpdateIPStatus)
		settings.DELETE("/ips/:id", h.security.DeleteIP)

		settings.GET("/logs", h.security.ListLogs)
		settings.DELETE("/logs", h.security.BatchDeleteLogs)
		settings.POST("/logs/retention", h.security.SetRetention)
		settings.GET("/logs/:id", h.security.GetLog)
		settings.DELETE("/logs/:id", h.security.DeleteLog)
	}
}
