package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/errcode"
)

const identityKey = "identity"

func abort(c *gin.Context, code int) {
	c.AbortWithStatusJSON(code, gin.H{"code": code, "data": nil, "message": errcode.Message(code)})
}

// AuthMiddleware 校验访问令牌，将身份写入 gin 上下文，并把用户名作为审计操作人写入请求 context。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized)
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abort(c, http.StatusUnauthorized)
			return
		}

		c.Set(identityKey, auth.Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			Role:     claims.Role,
		})
		c.Request = c.Request.WithContext(database.WithActor(c.Request.Context(), claims.Username))
		c.Next()
	}
}

// ActiveUser 每次请求按令牌中的用户 ID 回查账号：已删除或停用的账号返回 401，
// 角色以数据库为准，降级立即生效。须挂在 AuthMiddleware 之后。
func ActiveUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized)
			return
		}
		var user database.User
		err := db.WithContext(c.Request.Context()).Select("id", "role", "status").
			Where("id = ?", id.UserID).Limit(1).Find(&user).Error
		if err != nil {
			LoggerFromContext(c).Error("load token user failed", slog.Any("error", err))
			abort(c, http.StatusInternalServerError)
			return
		}
		if user.ID == "" || user.Status != database.UserActive {
			abort(c, http.StatusUnauthorized)
			return
		}
		if role := auth.Role(user.Role); role != id.Role {
			id.Role = role
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

// RequireRoles 要求当前用户的角色在列表中，否则返回 403。须挂在 AuthMiddleware 之后。
func RequireRoles(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized)
			return
		}
		if !id.Role.Allowed(roles...) {
			abort(c, http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// IdentityFromContext 返回 AuthMiddleware 写入的身份。
func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	if value, ok := c.Get(identityKey); ok {
		if id, ok := value.(auth.Identity); ok {
			return id, true
		}
	}
	return auth.Identity{}, false
}
