package api

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/database"
)

// ProfileHandler 个人中心。
type ProfileHandler struct {
	db *gorm.DB
}

func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

func (h *ProfileHandler) currentUser(c *gin.Context) (*database.User, bool) {
	id, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, "id = ?", id.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "用户不存在")
			return nil, false
		}
		middleware.LoggerFromContext(c).Error("load profile failed", slog.Any("error", err))
		Internal(c, "")
		return nil, false
	}
	return &user, true
}

// Get 返回当前用户资料。
func (h *ProfileHandler) Get(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	OK(c, user)
}

type updateProfileRequest struct {
	Email  *string `json:"email"`
	Phone  *string `json:"phone"`
	Gender *string `json:"gender"`
	Age    *int    `json:"age"`
	Avatar *string `json:"avatar"`
}

// Update 只允许修改联系方式与个人信息，用户名、角色、状态不受影响。
func (h *ProfileHandler) Update(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Age != nil && (*req.Age < 0 || *req.Age > 150) {
		BadRequest(c, "年龄不合法")
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	updates := map[string]any{}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Gender != nil {
		updates["gender"] = *req.Gender
	}
	if req.Age != nil {
		updates["age"] = *req.Age
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(user).Updates(updates).Error; err != nil {
			middleware.LoggerFromContext(c).Error("update profile failed", slog.Any("error", err))
			Internal(c, "")
			return
		}
	}
	OKMessage(c, "更新成功", user)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ChangePassword 校验旧密码后更新为新密码。
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if !auth.VerifyPassword(req.OldPassword, user.PasswordHash) {
		BadRequest(c, "原密码错误")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.OldPassword == req.NewPassword {
		BadRequest(c, "新密码不能与原密码相同")
		return
	}
	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		middleware.LoggerFromContext(c).Error("hash password failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(user).Update("password_hash", hashed).Error; err != nil {
		middleware.LoggerFromContext(c).Error("change password failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "密码已更新", nil)
}
