package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vectorAdmin/internal/api/middleware"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/storage"
	"vectorAdmin/internal/tasks"
	"vectorAdmin/internal/vector"
)

const (
	defaultPageSize  = 10
	maxPageSize      = 100
	exportLinkTTL    = 15 * time.Minute
	exportContentCSV = "text/csv; charset=utf-8"
)

// SyncReloader 在同步配置变化后重新加载定时计划。
type SyncReloader interface {
	Reload(ctx context.Context) error
}

// ExportStore 保存导出文件并签发下载链接，*storage.Client 实现了该接口。
type ExportStore interface {
	UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) error
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// VectorHandler 向量集的列表、增删改、同步配置、导出与向导元数据。
type VectorHandler struct {
	db        *gorm.DB
	enqueuer  tasks.Enqueuer
	scheduler SyncReloader
	exports   ExportStore
	now       func() time.Time
}

// NewVectorHandler 构造向量集处理器。scheduler 与 exports 可以为 nil。
func NewVectorHandler(db *gorm.DB, enqueuer tasks.Enqueuer, scheduler SyncReloader, exports ExportStore) *VectorHandler {
	return &VectorHandler{db: db, enqueuer: enqueuer, scheduler: scheduler, exports: exports, now: time.Now}
}

// Page 分页结果。
type Page[T any] struct {
	List  []T   `json:"list"`
	Total int64 `json:"total"`
}

// pagination 解析 page/pageSize，非法值回落到默认值。
func pagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page"))
	size, _ = strconv.Atoi(c.Query("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func reqLog(c *gin.Context) *slog.Logger { return middleware.LoggerFromContext(c) }

// List 支持按状态与标题关键字过滤，并分页。
func (h *VectorHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&database.VectorItem{})
	if status := c.Query("status"); status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
		q = q.Where(`title LIKE ? ESCAPE '\'`, database.ContainsPattern(keyword))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		reqLog(c).Error("count vectors failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	page, size := pagination(c)
	list := make([]database.VectorItem, 0, size)
	if err := q.Order("created_at DESC, id").Offset((page - 1) * size).Limit(size).Find(&list).Error; err != nil {
		reqLog(c).Error("list vectors failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, Page[database.VectorItem]{List: list, Total: total})
}

type simpleVector struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SimpleList 供下拉框使用，只返回 id 与标题。
func (h *VectorHandler) SimpleList(c *gin.Context) {
	list := make([]simpleVector, 0)
	if err := h.db.WithContext(c.Request.Context()).Model(&database.VectorItem{}).
		Order("created_at DESC, id").Find(&list).Error; err != nil {
		reqLog(c).Error("simple list vectors failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}

func (h *VectorHandler) load(c *gin.Context) (*database.VectorItem, bool) {
	var item database.VectorItem
	if err := h.db.WithContext(c.Request.Context()).First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "向量集不存在")
			return nil, false
		}
		reqLog(c).Error("load vector failed", slog.Any("error", err))
		Internal(c, "")
		return nil, false
	}
	return &item, true
}

// Get 返回单个向量集。
func (h *VectorHandler) Get(c *gin.Context) {
	if item, ok := h.load(c); ok {
		OK(c, item)
	}
}

type createVectorRequest struct {
	Title          string                 `json:"title"`
	DatabaseID     string                 `json:"databaseId"`
	Content        string                 `json:"content"`
	Dimensions     int                    `json:"dimensions"`
	SelectedFields []vector.SelectedField `json:"selectedFields"`
	JoinRules      json.RawMessage        `json:"joinRules"`
	IndexConfig    *vector.IndexConfig    `json:"indexConfig"`
	// TaskID 非空时复用已登记的后台任务（向导转入后台运行）。
	TaskID string `json:"taskId"`
}

type createVectorResponse struct {
	TaskID   string `json:"taskId"`
	VectorID string `json:"vectorId"`
}

// Create 保存向量集并投递索引任务。
func (h *VectorHandler) Create(c *gin.Context) {
	var req createVectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := vector.ValidateTitle(req.Title); err != nil {
		BadRequest(c, "名称只能包含字母、数字和下划线")
		return
	}
	if len(req.SelectedFields) == 0 {
		BadRequest(c, "请至少选择一个字段")
		return
	}
	tables := distinctTables(req.SelectedFields)
	rules, err := vector.ParseJoinRules(req.JoinRules)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	if len(tables) > 1 {
		if rules == nil {
			BadRequest(c, "多表向量集需要配置关联规则")
			return
		}
		if err := rules.Validate(); err != nil {
			BadRequest(c, err.Error())
			return
		}
	} else {
		rules = nil
	}
	indexConfig := vector.DefaultIndexConfig()
	if req.IndexConfig != nil {
		if err := req.IndexConfig.Validate(); err != nil {
			BadRequest(c, err.Error())
			return
		}
		indexConfig = req.IndexConfig.WithDefaults()
	}
	dimensions := req.Dimensions
	if dimensions <= 0 {
		dimensions = 1536
	}

	ctx := c.Request.Context()
	id, _ := middleware.IdentityFromContext(c)
	now := h.now().UTC()
	item := database.VectorItem{
		ID:             database.NewID("vec"),
		Title:          req.Title,
		Content:        req.Content,
		Dimensions:     dimensions,
		Source:         h.sourceLabel(ctx, req.DatabaseID, tables),
		Status:         vector.StatusPending,
		IsMultiTable:   len(tables) > 1,
		SelectedFields: req.SelectedFields,
		JoinRules:      datatypes.NewJSONType(rules),
		IndexConfig:    datatypes.NewJSONType(indexConfig),
		IsEnabled:      true,
		CronConfig:     datatypes.NewJSONType(vector.CronConfig{}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var taskID string
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&database.VectorItem{}).Where("title = ?", item.Title).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return errNameExists
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create vector: %w", err)
		}

		if req.TaskID != "" {
			// 只能关联自己登记、尚未绑定向量集的任务
			res := tx.Model(&database.BackgroundTask{}).
				Where("id = ? AND user_id = ? AND (vector_id = '' OR vector_id IS NULL)", req.TaskID, id.UserID).
				Update("vector_id", item.ID)
			if res.Error != nil {
				return fmt.Errorf("link task: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errTaskNotLinkable
			}
			taskID = req.TaskID
			return nil
		}
		task := database.BackgroundTask{
			ID:        database.NewID("t"),
			Name:      vector.IndexTaskName(item.Title),
			Status:    database.TaskPending,
			StartTime: now,
			VectorID:  item.ID,
			UserID:    id.UserID,
		}
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("create index task: %w", err)
		}
		taskID = task.ID
		return nil
	})
	if errors.Is(err, errNameExists) {
		Conflict(c, "名称已存在")
		return
	}
	if errors.Is(err, errTaskNotLinkable) {
		Conflict(c, "任务不存在或已关联其他向量集")
		return
	}
	if err != nil {
		reqLog(c).Error("create vector failed", slog.Any("error", err))
		Internal(c, "")
		return
	}

	job, err := tasks.NewVectorIndexTask(item.ID, taskID, middleware.RequestIDFrom(c))
	if err == nil {
		err = h.enqueuer.Enqueue(ctx, job)
	}
	if err != nil {
		reqLog(c).Error("enqueue index task failed", slog.Any("error", err), slog.String("vector_id", item.ID))
		if err := h.abandonIndex(ctx, item.ID, taskID); err != nil {
			reqLog(c).Error("mark abandoned index failed", slog.Any("error", err), slog.String("vector_id", item.ID))
		}
		Internal(c, "任务投递失败")
		return
	}
	reqLog(c).Info("vector created", slog.String("vector_id", item.ID), slog.String("task_id", taskID))
	OKMessage(c, "任务创建成功", createVectorResponse{TaskID: taskID, VectorID: item.ID})
}

var (
	errNameExists      = errors.New("vector title already exists")
	errTaskNotLinkable = errors.New("task missing or already linked")
)

// abandonIndex 投递失败时把向量集置为 error、任务置为失败，避免永远停在 pending。
func (h *VectorHandler) abandonIndex(ctx context.Context, vectorID, taskID string) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.VectorItem{}).Where("id = ?", vectorID).
			Update("status", vector.StatusError).Error; err != nil {
			return err
		}
		return tx.Model(&database.BackgroundTask{}).Where("id = ?", taskID).
			Update("status", database.TaskFailed).Error
	})
}

func distinctTables(fields []vector.SelectedField) []string {
	seen := map[string]bool{}
	var tables []string
	for _, f := range fields {
		if !seen[f.TableID] {
			seen[f.TableID] = true
			tables = append(tables, f.TableID)
		}
	}
	return tables
}

// sourceLabel 生成 "DB: <库名> (<表名>, ...)" 形式的来源描述，查不到时退回 ID。
func (h *VectorHandler) sourceLabel(ctx context.Context, databaseID string, tableIDs []string) string {
	dbName := databaseID
	var catalog database.CatalogDatabase
	if databaseID != "" && h.db.WithContext(ctx).First(&catalog, "id = ?", databaseID).Error == nil {
		dbName = catalog.Name
	}
	var tables []database.CatalogTable
	names := make([]string, 0, len(tableIDs))
	if h.db.WithContext(ctx).Where("id IN ?", tableIDs).Find(&tables).Error == nil && len(tables) == len(tableIDs) {
		byID := make(map[string]string, len(tables))
		for _, t := range tables {
			byID[t.ID] = t.Name
		}
		for _, id := range tableIDs {
			names = append(names, byID[id])
		}
	} else {
		names = append(names, tableIDs...)
	}
	if dbName == "" {
		return "DB: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("DB: %s (%s)", dbName, strings.Join(names, ", "))
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

// UpdateTitle 只修改标题。
func (h *VectorHandler) UpdateTitle(c *gin.Context) {
	var req updateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := vector.ValidateTitle(req.Title); err != nil {
		BadRequest(c, "名称只能包含字母、数字和下划线")
		return
	}
	item, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(item).Update("title", req.Title).Error; err != nil {
		reqLog(c).Error("update vector title failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "更新成功", item)
}

type updateStatusRequest struct {
	IsEnabled *bool `json:"isEnabled" binding:"required"`
}

// UpdateStatus 只切换启用状态，其余字段保持不变。
func (h *VectorHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "isEnabled 不能为空")
		return
	}
	item, ok := h.load(c)
	if !ok {
		return
	}
	// 只写 is_enabled：不刷新 updated_at，也不改写 updated_by
	ctx := database.WithoutActor(c.Request.Context())
	err := h.db.WithContext(ctx).Model(&database.VectorItem{}).Where("id = ?", item.ID).
		UpdateColumn("is_enabled", *req.IsEnabled).Error
	if err != nil {
		reqLog(c).Error("update vector status failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	h.reload(c)
	OKMessage(c, "状态已更新", nil)
}

// Delete 删除单个向量集。
func (h *VectorHandler) Delete(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).Delete(&database.VectorItem{}, "id = ?", c.Param("id"))
	if res.Error != nil {
		reqLog(c).Error("delete vector failed", slog.Any("error", res.Error))
		Internal(c, "")
		return
	}
	if res.RowsAffected == 0 {
		NotFound(c, "向量集不存在")
		return
	}
	h.reload(c)
	OKMessage(c, "删除成功", nil)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// BatchDelete 按 ids 批量删除，不存在的 id 被忽略。
func (h *VectorHandler) BatchDelete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		BadRequest(c, "请选择要删除的向量集")
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id IN ?", req.IDs).Delete(&database.VectorItem{})
	if res.Error != nil {
		reqLog(c).Error("batch delete vectors failed", slog.Any("error", res.Error))
		Internal(c, "")
		return
	}
	h.reload(c)
	OKMessage(c, "删除成功", gin.H{"deleted": res.RowsAffected})
}

// SyncConfig 保存定时同步配置并刷新调度。
func (h *VectorHandler) SyncConfig(c *gin.Context) {
	var req vector.CronConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req.Expression = strings.TrimSpace(req.Expression)
	if err := req.Validate(); err != nil {
		BadRequest(c, "Cron 表达式不合法")
		return
	}
	item, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(item).
		Update("cron_config", datatypes.NewJSONType(req)).Error; err != nil {
		reqLog(c).Error("update sync config failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	h.reload(c)
	OKMessage(c, "配置已更新", req)
}

func (h *VectorHandler) reload(c *gin.Context) {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.Reload(c.Request.Context()); err != nil {
		reqLog(c).Warn("reload scheduler failed", slog.Any("error", err))
	}
}

type checkNameRequest struct {
	Title string `json:"title"`
}

// CheckName 判断标题是否已被占用。
func (h *VectorHandler) CheckName(c *gin.Context) {
	var req checkNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&database.VectorItem{}).
		Where("title = ?", strings.TrimSpace(req.Title)).Count(&count).Error; err != nil {
		reqLog(c).Error("check vector name failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, gin.H{"exists": count > 0})
}

type exportResponse struct {
	URL       string `json:"url"`
	ObjectKey string `json:"objectKey"`
}

// Export 导出为 CSV。配置了对象存储时上传并返回限时链接，否则直接返回文件。
func (h *VectorHandler) Export(c *gin.Context) {
	ids := exportIDs(c)
	q := h.db.WithContext(c.Request.Context()).Order("created_at DESC, id")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var items []database.VectorItem
	if err := q.Find(&items).Error; err != nil {
		reqLog(c).Error("load vectors for export failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	data, err := EncodeVectorsCSV(items)
	if err != nil {
		reqLog(c).Error("encode export failed", slog.Any("error", err))
		Internal(c, "")
		return
	}

	if h.exports == nil {
		filename := "vectors_" + h.now().UTC().Format("20060102150405") + ".csv"
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, exportContentCSV, data)
		return
	}

	ctx := c.Request.Context()
	id, _ := middleware.IdentityFromContext(c)
	key := storage.ExportObjectKey(id.Username, h.now())
	if err := h.exports.UploadBytes(ctx, key, data, exportContentCSV); err != nil {
		reqLog(c).Error("upload export failed", slog.Any("error", err))
		Internal(c, "导出失败")
		return
	}
	url, err := h.exports.GeneratePresignedURL(ctx, key, exportLinkTTL)
	if err != nil {
		reqLog(c).Error("presign export failed", slog.Any("error", err))
		Internal(c, "导出失败")
		return
	}
	OK(c, exportResponse{URL: url, ObjectKey: key})
}

// exportIDs 接受 JSON 体中的 ids，或查询参数 ids（逗号分隔或重复出现）。
func exportIDs(c *gin.Context) []string {
	var req idsRequest
	if c.Request.Method == http.MethodPost && c.ShouldBindJSON(&req) == nil && len(req.IDs) > 0 {
		return req.IDs
	}
	var ids []string
	for _, v := range c.QueryArray("ids") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// EncodeVectorsCSV 输出带 UTF-8 BOM 的 CSV，便于表格软件直接打开。
func EncodeVectorsCSV(items []database.VectorItem) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	header := []string{"id", "title", "source", "status", "dimensions", "enabled", "multiTable", "fields", "createdAt"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, item := range items {
		row := []string{
			item.ID,
			item.Title,
			item.Source,
			string(item.Status),
			strconv.Itoa(item.Dimensions),
			strconv.FormatBool(item.IsEnabled),
			strconv.FormatBool(item.IsMultiTable),
			vector.FieldNames(item.SelectedFields),
			item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Databases 向导第一步的数据源列表。
func (h *VectorHandler) Databases(c *gin.Context) {
	list := make([]database.CatalogDatabase, 0)
	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&list).Error; err != nil {
		reqLog(c).Error("list catalog databases failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}

// Tables 返回 dbId 下的表；未指定 dbId 时返回全部。
func (h *VectorHandler) Tables(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Order("id")
	if dbID := c.Query("dbId"); dbID != "" {
		q = q.Where("database_id = ?", dbID)
	}
	list := make([]database.CatalogTable, 0)
	if err := q.Find(&list).Error; err != nil {
		reqLog(c).Error("list catalog tables failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}

// Fields 返回 tableId 的字段。
func (h *VectorHandler) Fields(c *gin.Context) {
	tableID := c.Query("tableId")
	if tableID == "" {
		BadRequest(c, "tableId 不能为空")
		return
	}
	list := make([]database.CatalogField, 0)
	if err := h.db.WithContext(c.Request.Context()).Where("table_id = ?", tableID).Order("id").Find(&list).Error; err != nil {
		reqLog(c).Error("list catalog fields failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, list)
}
