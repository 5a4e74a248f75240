package api

import (
	"encoding/json"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vectorAdmin/internal/database"
)

const (
	minRetentionDays = 1
	maxRetentionDays = 3650
)

// SecurityHandler IP 访问控制与系统日志管理，仅管理员可用。
type SecurityHandler struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSecurityHandler(db *gorm.DB) *SecurityHandler {
	return &SecurityHandler{db: db, now: time.Now}
}

// ListIPs 可按状态过滤。
func (h *SecurityHandler) ListIPs(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Order("id")
	if status := c.Query("status"); status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	list := make([]database.IPRecord, 0)
	if err := q.Find(&list).Error; err != nil {
		reqLog(c).Error("list ips failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}

type addIPRequest struct {
	IP       string `json:"ip" binding:"required"`
	Location string `json:"location"`
}

// AddIP 新登记的 IP 默认处于拦截状态，访问次数为 0。
func (h *SecurityHandler) AddIP(c *gin.Context) {
	var req addIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "IP 不能为空")
		return
	}
	ip := strings.TrimSpace(req.IP)
	if net.ParseIP(ip) == nil {
		BadRequest(c, "IP 格式不正确")
		return
	}
	record := database.IPRecord{
		ID:       database.NewID("ip"),
		IP:       ip,
		Location: req.Location,
		Status:   database.IPBlocked,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&record).Error; err != nil {
		reqLog(c).Error("add ip failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "添加成功", record)
}

// UpdateIPStatus 切换放行或拦截。
func (h *SecurityHandler) UpdateIPStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Status != database.IPAllowed && req.Status != database.IPBlocked) {
		BadRequest(c, "未知状态")
		return
	}
	record, ok := findByID[database.IPRecord](c, h.db, "记录不存在")
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(record).Update("status", req.Status).Error; err != nil {
		reqLog(c).Error("update ip status failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "状态更新", record)
}

// DeleteIP 移除登记。
func (h *SecurityHandler) DeleteIP(c *gin.Context) {
	deleteByID[database.IPRecord](c, h.db, "记录不存在")
}

// ListLogs 支持类型、状态、关键字过滤与分页，按时间倒序。
func (h *SecurityHandler) ListLogs(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&database.SystemLog{})
	if typ := c.Query("type"); typ != "" && typ != "all" {
		q = q.Where("type = ?", typ)
	}
	if status := c.Query("status"); status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
		like := database.ContainsPattern(keyword)
		// user 在 PostgreSQL 中是保留字，交给 clause 负责引用
		q = q.Where(clause.Or(
			likeColumn("action", like),
			likeColumn("user", like),
			likeColumn("details", like),
		))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		reqLog(c).Error("count logs failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	page, size := pagination(c)
	list := make([]database.SystemLog, 0, size)
	if err := q.Order("logged_at DESC, id").Offset((page - 1) * size).Limit(size).Find(&list).Error; err != nil {
		reqLog(c).Error("list logs failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, Page[database.SystemLog]{List: list, Total: total})
}

// GetLog 返回格式化后的日志详情。
func (h *SecurityHandler) GetLog(c *gin.Context) {
	entry, ok := findByID[database.SystemLog](c, h.db, "日志不存在")
	if !ok {
		return
	}
	pretty, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		Internal(c, "")
		return
	}
	OK(c, gin.H{"details": string(pretty)})
}

// DeleteLog 删除单条日志。
func (h *SecurityHandler) DeleteLog(c *gin.Context) {
	deleteByID[database.SystemLog](c, h.db, "日志不存在")
}

// BatchDeleteLogs 按 ids 批量删除。
func (h *SecurityHandler) BatchDeleteLogs(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		BadRequest(c, "请选择要删除的日志")
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id IN ?", req.IDs).Delete(&database.SystemLog{})
	if res.Error != nil {
		reqLog(c).Error("batch delete logs failed", slog.Any("error", res.Error))
		Internal(c, "")
		return
	}
	OKMessage(c, "删除成功", gin.H{"deleted": res.RowsAffected})
}

type retentionRequest struct {
	Days int `json:"days"`
}

// SetRetention 保存日志保留天数，由定时清理任务读取。
func (h *SecurityHandler) SetRetention(c *gin.Context) {
	var req retentionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Days < minRetentionDays || req.Days > maxRetentionDays {
		BadRequest(c, "保留天数需在 1 到 3650 之间")
		return
	}
	setting := database.Setting{
		Key:       database.SettingLogRetentionDays,
		Value:     strconv.Itoa(req.Days),
		UpdatedAt: h.now().UTC(),
	}
	err := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		reqLog(c).Error("save retention failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "策略已保存", gin.H{"days": req.Days})
}

func likeColumn(name, pattern string) clause.Expression {
	return clause.Expr{SQL: `? LIKE ? ESCAPE '\'`, Vars: []any{clause.Column{Name: name}, pattern}}
}
