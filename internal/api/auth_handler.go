package api

import (
	"context"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/cache"
	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
)

const refreshTokenCookieName = "refresh_token"

// AuthHandler 处理验证码、登录、刷新、退出与当前用户信息。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	store       cache.Store
	captcha     *auth.CaptchaService
	guard       *auth.LoginGuard
	cfg         config.AuthConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, store cache.Store, captcha *auth.CaptchaService, guard *auth.LoginGuard, cfg config.AuthConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		store:       store,
		captcha:     captcha,
		guard:       guard,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Captcha 颁发一张新的验证码。
func (h *AuthHandler) Captcha(c *gin.Context) {
	captcha, err := h.captcha.Issue(c.Request.Context())
	if err != nil {
		h.loggerFromContext(c).Error("issue captcha failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, captcha)
}

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Captcha    string `json:"captcha"`
	Key        string `json:"key"`
	RememberMe bool   `json:"rememberMe"`
}

type loginResponse struct {
	Token             string         `json:"token"`
	RefreshToken      string         `json:"refreshToken"`
	ExpiresIn         int            `json:"expiresIn"`
	RememberExpiresAt int64          `json:"rememberExpiresAt,omitempty"`
	User              *database.User `json:"user"`
}

// Login 校验验证码与口令并返回令牌。每次尝试都会写入一条登录日志。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "用户名和密码不能为空")
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	logger := h.loggerFromContext(c).With(slog.String("username", req.Username))

	if h.cfg.CaptchaRequired {
		if err := h.captcha.Verify(ctx, req.Key, req.Captcha); err != nil {
			logger.Info("login failed: captcha", slog.Any("error", err))
			h.writeLoginLog(ctx, req.Username, ip, database.LogFailure, "验证码错误")
			BadRequest(c, "验证码错误或已过期")
			return
		}
	}

	if err := h.guard.Check(ctx, ip, req.Username); err != nil {
		logger.Info("login rejected", slog.Any("error", err))
		h.writeLoginLog(ctx, req.Username, ip, database.LogFailure, err.Error())
		if errors.Is(err, auth.ErrAccountLocked) {
			TooManyRequests(c, "账号已被临时锁定，请稍后再试")
			return
		}
		TooManyRequests(c, "登录过于频繁，请稍后再试")
		return
	}

	var user database.User
	err := h.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	if err != nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Info("login failed: bad credentials")
		h.guard.Fail(ctx, req.Username)
		h.writeLoginLog(ctx, req.Username, ip, database.LogFailure, "用户名或密码错误")
		Unauthorized(c, "用户名或密码错误")
		return
	}
	if user.Status == database.UserInactive {
		logger.Info("login failed: user inactive")
		h.writeLoginLog(ctx, req.Username, ip, database.LogFailure, "账号已停用")
		Forbidden(c, "账号已停用")
		return
	}

	h.guard.Succeed(ctx, req.Username)
	now := h.now().UTC()
	if err := h.db.WithContext(ctx).Model(&user).UpdateColumn("last_login", now).Error; err != nil {
		logger.Warn("update last login failed", slog.Any("error", err))
	}
	user.LastLogin = &now

	pair, err := h.authService.GenerateTokenPair(identityOf(user))
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	h.writeLoginLog(ctx, req.Username, ip, database.LogSuccess, "登录成功")

	resp := h.tokenResponse(c, pair, &user)
	if req.RememberMe {
		resp.RememberExpiresAt = now.Add(h.rememberMeTTL()).UnixMilli()
	}
	OKMessage(c, "登录成功", resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh 校验刷新令牌并颁发新的令牌对，旧刷新令牌随即作废。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	claims, ok := h.refreshClaims(c)
	if !ok {
		Unauthorized(c, "")
		return
	}

	revoked, err := auth.IsRefreshRevoked(ctx, h.store, claims.ID)
	if err != nil {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	if revoked {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c, "")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c, "")
		return
	}
	if user.Status == database.UserInactive {
		Forbidden(c, "账号已停用")
		return
	}

	pair, err := h.authService.GenerateTokenPair(identityOf(user))
	if err != nil {
		logger.Error("refresh generate token pair failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	if err := auth.RevokeRefresh(ctx, h.store, claims.ID, claims.ExpiresAt.Time); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "")
		return
	}

	OK(c, h.tokenResponse(c, pair, &user))
}

// Logout 尽力作废刷新令牌并清除 Cookie，总是返回成功。
func (h *AuthHandler) Logout(c *gin.Context) {
	if claims, ok := h.refreshClaims(c); ok {
		if err := auth.RevokeRefresh(c.Request.Context(), h.store, claims.ID, claims.ExpiresAt.Time); err != nil {
			h.loggerFromContext(c).Warn("logout revoke token failed", slog.Any("error", err))
		}
	}
	stdhttp.SetCookie(c.Writer, &stdhttp.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: stdhttp.SameSiteLaxMode,
	})
	OKMessage(c, "已退出登录", nil)
}

type meResponse struct {
	User  *database.User  `json:"user"`
	Menus []database.Menu `json:"menus"`
}

// Me 返回当前用户以及其角色可见的菜单。
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", id.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c, "")
			return
		}
		h.loggerFromContext(c).Error("load current user failed", slog.Any("error", err))
		Internal(c, "")
		return
	}

	var menus []database.Menu
	if err := h.db.WithContext(ctx).Order("sort, id").Find(&menus).Error; err != nil {
		h.loggerFromContext(c).Error("load menus failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, meResponse{User: &user, Menus: menuTree(visibleMenus(menus, auth.Role(user.Role)))})
}

func (h *AuthHandler) refreshClaims(c *gin.Context) (*auth.TokenClaims, bool) {
	token := h.extractRefreshToken(c)
	if token == "" {
		return nil, false
	}
	claims, err := h.authService.ValidateToken(token)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) tokenResponse(c *gin.Context, pair auth.TokenPair, user *database.User) loginResponse {
	h.setRefreshCookie(c, pair.RefreshToken)
	return loginResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(h.authService.AccessTokenTTL().Seconds()),
		User:         user,
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	ttl := h.authService.RefreshTokenTTL()
	if ttl <= 0 {
		ttl = time.Hour
	}
	stdhttp.SetCookie(c.Writer, &stdhttp.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   int(ttl.Seconds()),
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: stdhttp.SameSiteLaxMode,
		Expires:  h.now().Add(ttl),
	})
}

func (h *AuthHandler) rememberMeTTL() time.Duration {
	if h.cfg.RememberMeTTL > 0 {
		return h.cfg.RememberMeTTL
	}
	return 7 * 24 * time.Hour
}

func (h *AuthHandler) writeLoginLog(ctx context.Context, username, ip, status, details string) {
	entry := database.SystemLog{
		ID:        database.NewID("log"),
		Action:    "LOGIN",
		Module:    "auth",
		Type:      database.LogTypeLogin,
		User:      username,
		IP:        ip,
		Details:   details,
		Status:    status,
		Timestamp: h.now().UTC(),
	}
	if err := h.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error; err != nil {
		h.logger.Error("write login log failed", slog.Any("error", err))
	}
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func identityOf(user database.User) auth.Identity {
	return auth.Identity{UserID: user.ID, Username: user.Username, Role: auth.Role(user.Role)}
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}

// visibleMenus 过滤出可见且对 role 开放的菜单。
func visibleMenus(menus []database.Menu, role auth.Role) []database.Menu {
	out := make([]database.Menu, 0, len(menus))
	for _, m := range menus {
		// 角色列表为空的菜单对任何角色都不可见
		if m.Visible && slices.Contains(m.Roles, string(role)) {
			out = append(out, m)
		}
	}
	return out
}

// menuTree 将带 ParentID 的菜单挂到父节点下；父节点不在列表中的菜单作为根节点。
func menuTree(menus []database.Menu) []database.Menu {
	index := make(map[uint]int, len(menus))
	for i, m := range menus {
		index[m.ID] = i
	}
	children := make(map[uint][]database.Menu)
	roots := make([]database.Menu, 0, len(menus))
	for _, m := range menus {
		if m.ParentID != nil {
			if _, ok := index[*m.ParentID]; ok {
				children[*m.ParentID] = append(children[*m.ParentID], m)
				continue
			}
		}
		roots = append(roots, m)
	}
	var attach func(items []database.Menu) []database.Menu
	attach = func(items []database.Menu) []database.Menu {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Sort < items[j].Sort })
		for i := range items {
			if kids, ok := children[items[i].ID]; ok {
				items[i].Children = attach(kids)
			}
		}
		return items
	}
	return attach(roots)
}
