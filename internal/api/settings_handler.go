package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/database"
)

// SettingsHandler 菜单、角色与用户管理，仅管理员可用。
type SettingsHandler struct {
	db *gorm.DB
}

func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// deleteByID 删除主键为 :id 的记录，不存在时返回 404。
func deleteByID[T any](c *gin.Context, db *gorm.DB, notFound string) {
	var model T
	res := db.WithContext(c.Request.Context()).Delete(&model, "id = ?", c.Param("id"))
	if res.Error != nil {
		reqLog(c).Error("delete failed", slog.Any("error", res.Error))
		Internal(c, "")
		return
	}
	if res.RowsAffected == 0 {
		NotFound(c, notFound)
		return
	}
	OKMessage(c, "删除成功", nil)
}

// findByID 读取主键为 :id 的记录，失败时已写出响应。
func findByID[T any](c *gin.Context, db *gorm.DB, notFound string) (*T, bool) {
	var model T
	if err := db.WithContext(c.Request.Context()).First(&model, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, notFound)
			return nil, false
		}
		reqLog(c).Error("load failed", slog.Any("error", err))
		Internal(c, "")
		return nil, false
	}
	return &model, true
}

func (h *SettingsHandler) save(c *gin.Context, model any, updates map[string]any) bool {
	if len(updates) == 0 {
		return true
	}
	if err := h.db.WithContext(c.Request.Context()).Model(model).Updates(updates).Error; err != nil {
		reqLog(c).Error("update failed", slog.Any("error", err))
		Internal(c, "")
		return false
	}
	return true
}

// ListMenus 按排序返回全部菜单。
func (h *SettingsHandler) ListMenus(c *gin.Context) {
	menus := make([]database.Menu, 0)
	if err := h.db.WithContext(c.Request.Context()).Order("sort, id").Find(&menus).Error; err != nil {
		reqLog(c).Error("list menus failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, menus)
}

type updateMenuRequest struct {
	Name     *string   `json:"name"`
	Path     *string   `json:"path"`
	Visible  *bool     `json:"visible"`
	Roles    *[]string `json:"roles"`
	ParentID *uint     `json:"parentId"`
	Sort     *int      `json:"sort"`
}

// UpdateMenu 部分更新菜单。
func (h *SettingsHandler) UpdateMenu(c *gin.Context) {
	var req updateMenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	menu, ok := findByID[database.Menu](c, h.db, "菜单不存在")
	if !ok {
		return
	}
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Path != nil {
		updates["path"] = strings.TrimSpace(*req.Path)
	}
	if req.Visible != nil {
		updates["visible"] = *req.Visible
	}
	if req.Roles != nil {
		roles := *req.Roles
		if len(auth.RolesOf(roles)) != len(roles) {
			BadRequest(c, "包含未知角色")
			return
		}
		updates["roles"] = datatypes.JSONSlice[string](roles)
	}
	if req.ParentID != nil && *req.ParentID == 0 {
		// 0 表示移到顶层
		updates["parent_id"] = nil
	} else if req.ParentID != nil {
		if msg, err := h.checkMenuParent(c.Request.Context(), menu.ID, *req.ParentID); err != nil {
			reqLog(c).Error("check menu parent failed", slog.Any("error", err))
			Internal(c, "")
			return
		} else if msg != "" {
			BadRequest(c, msg)
			return
		}
		updates["parent_id"] = *req.ParentID
	}
	if req.Sort != nil {
		updates["sort"] = *req.Sort
	}
	if !h.save(c, menu, updates) {
		return
	}
	OKMessage(c, "更新成功", menu)
}

// checkMenuParent 校验上级菜单存在，且沿上级链向上不会回到 menuID。
// 返回非空提示表示请求不合法。
func (h *SettingsHandler) checkMenuParent(ctx context.Context, menuID, parentID uint) (string, error) {
	var menus []database.Menu
	if err := h.db.WithContext(ctx).Select("id", "parent_id").Find(&menus).Error; err != nil {
		return "", err
	}
	parents := make(map[uint]*uint, len(menus))
	for _, m := range menus {
		parents[m.ID] = m.ParentID
	}
	if _, ok := parents[parentID]; !ok {
		return "上级菜单不存在", nil
	}
	for cur, hops := &parentID, 0; cur != nil && hops <= len(menus); cur, hops = parents[*cur], hops+1 {
		if *cur == menuID {
			return "上级菜单不能是自身或其下级", nil
		}
	}
	return "", nil
}

// ListRoles 返回全部角色。
func (h *SettingsHandler) ListRoles(c *gin.Context) {
	roles := make([]database.Role, 0)
	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&roles).Error; err != nil {
		reqLog(c).Error("list roles failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, roles)
}

type roleRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// CreateRole 新建角色，未提供权限时为空列表。
func (h *SettingsHandler) CreateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		BadRequest(c, "角色名称不能为空")
		return
	}
	role := database.Role{
		ID:          database.NewID("role"),
		Name:        strings.TrimSpace(*req.Name),
		Permissions: append([]string{}, req.Permissions...),
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&role).Error; err != nil {
		reqLog(c).Error("create role failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "创建成功", role)
}

// UpdateRole 修改名称与描述。
func (h *SettingsHandler) UpdateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	role, ok := findByID[database.Role](c, h.db, "角色不存在")
	if !ok {
		return
	}
	updates := map[string]any{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			BadRequest(c, "角色名称不能为空")
			return
		}
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if !h.save(c, role, updates) {
		return
	}
	OKMessage(c, "更新成功", role)
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// UpdatePermissions 整体替换角色权限。
func (h *SettingsHandler) UpdatePermissions(c *gin.Context) {
	var req permissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	role, ok := findByID[database.Role](c, h.db, "角色不存在")
	if !ok {
		return
	}
	role.Permissions = append([]string{}, req.Permissions...)
	if err := h.db.WithContext(c.Request.Context()).Model(role).Select("permissions").Updates(role).Error; err != nil {
		reqLog(c).Error("update permissions failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "权限已更新", role)
}

// DeleteRole 删除角色。
func (h *SettingsHandler) DeleteRole(c *gin.Context) {
	deleteByID[database.Role](c, h.db, "角色不存在")
}

// ListUsers 支持关键字、角色、状态过滤与分页。
func (h *SettingsHandler) ListUsers(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&database.User{})
	if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
		like := database.ContainsPattern(keyword)
		q = q.Where(`username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'`, like, like)
	}
	if role := c.Query("role"); role != "" && role != "all" {
		q = q.Where("role = ?", role)
	}
	if status := c.Query("status"); status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		reqLog(c).Error("count users failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	page, size := pagination(c)
	list := make([]database.User, 0, size)
	if err := q.Order("id").Offset((page - 1) * size).Limit(size).Find(&list).Error; err != nil {
		reqLog(c).Error("list users failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, Page[database.User]{List: list, Total: total})
}

type userRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Phone    *string `json:"phone"`
	Gender   *string `json:"gender"`
	Age      *int    `json:"age"`
	Avatar   *string `json:"avatar"`
}

func validUserStatus(s string) bool {
	return s == database.UserActive || s == database.UserInactive
}

// CreateUser 新建用户，密码以 bcrypt 哈希保存。用户名不要求唯一。
func (h *SettingsHandler) CreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Username == nil || strings.TrimSpace(*req.Username) == "" {
		BadRequest(c, "用户名不能为空")
		return
	}
	if req.Password == nil {
		BadRequest(c, auth.ErrPasswordBlank.Error())
		return
	}
	if err := auth.ValidatePassword(*req.Password); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user := database.User{
		ID:       database.NewID("u"),
		Username: strings.TrimSpace(*req.Username),
		Role:     string(auth.RoleViewer),
		Status:   database.UserActive,
	}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			BadRequest(c, "未知角色")
			return
		}
		user.Role = string(role)
	}
	if req.Status != nil {
		if !validUserStatus(*req.Status) {
			BadRequest(c, "未知状态")
			return
		}
		user.Status = *req.Status
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.Age != nil {
		user.Age = *req.Age
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}
	hashed, err := auth.HashPassword(*req.Password)
	if err != nil {
		reqLog(c).Error("hash password failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	user.PasswordHash = hashed
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		reqLog(c).Error("create user failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "创建成功", user)
}

// UpdateUser 部分更新用户；提供 password 时重新哈希。
func (h *SettingsHandler) UpdateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, ok := findByID[database.User](c, h.db, "用户不存在")
	if !ok {
		return
	}
	updates := map[string]any{}
	if req.Username != nil {
		if strings.TrimSpace(*req.Username) == "" {
			BadRequest(c, "用户名不能为空")
			return
		}
		updates["username"] = strings.TrimSpace(*req.Username)
	}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			BadRequest(c, "未知角色")
			return
		}
		updates["role"] = string(role)
	}
	if req.Status != nil {
		if !validUserStatus(*req.Status) {
			BadRequest(c, "未知状态")
			return
		}
		updates["status"] = *req.Status
	}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
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
	if req.Password != nil && *req.Password != "" {
		if err := auth.ValidatePassword(*req.Password); err != nil {
			BadRequest(c, err.Error())
			return
		}
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			reqLog(c).Error("hash password failed", slog.Any("error", err))
			Internal(c, "")
			return
		}
		updates["password_hash"] = hashed
	}
	if !h.save(c, user, updates) {
		return
	}
	OKMessage(c, "更新成功", user)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateUserStatus 启用或停用账号。不能停用自己。
func (h *SettingsHandler) UpdateUserStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validUserStatus(req.Status) {
		BadRequest(c, "未知状态")
		return
	}
	if id, _ := middleware.IdentityFromContext(c); id.UserID == c.Param("id") && req.Status == database.UserInactive {
		BadRequest(c, "不能停用当前登录账号")
		return
	}
	user, ok := findByID[database.User](c, h.db, "用户不存在")
	if !ok {
		return
	}
	if !h.save(c, user, map[string]any{"status": req.Status}) {
		return
	}
	OKMessage(c, "状态更新", user)
}

// DeleteUser 删除用户。不能删除自己。
func (h *SettingsHandler) DeleteUser(c *gin.Context) {
	if id, _ := middleware.IdentityFromContext(c); id.UserID == c.Param("id") {
		BadRequest(c, "不能删除当前登录账号")
		return
	}
	deleteByID[database.User](c, h.db, "用户不存在")
}
