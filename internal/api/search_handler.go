package api

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vectorAdmin/internal/database"
	"vectorAdmin/internal/search"
)

// SearchHandler 向量检索、知识库配置与检索、输出清洗工具。
type SearchHandler struct {
	db *gorm.DB
}

func NewSearchHandler(db *gorm.DB) *SearchHandler {
	return &SearchHandler{db: db}
}

// Vector 对指定向量集做模拟检索。
func (h *SearchHandler) Vector(c *gin.Context) {
	var req search.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.VectorID != "" {
		var item database.VectorItem
		err := h.db.WithContext(c.Request.Context()).Select("id").First(&item, "id = ?", req.VectorID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "向量集不存在")
			return
		}
		if err != nil {
			reqLog(c).Error("load vector for search failed", slog.Any("error", err))
			Internal(c, "")
			return
		}
	}
	hits, err := search.Vector(req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	OK(c, hits)
}

// GetKBConfig 返回知识库配置。
func (h *SearchHandler) GetKBConfig(c *gin.Context) {
	cfg, err := search.LoadKBConfig(c.Request.Context(), h.db)
	if err != nil {
		reqLog(c).Error("load kb config failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OK(c, cfg)
}

// UpdateKBConfig 在当前配置上覆盖请求中的字段后保存。
func (h *SearchHandler) UpdateKBConfig(c *gin.Context) {
	cfg, err := search.LoadKBConfig(c.Request.Context(), h.db)
	if err != nil {
		reqLog(c).Error("load kb config failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := search.SaveKBConfig(c.Request.Context(), h.db, cfg); err != nil {
		reqLog(c).Error("save kb config failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	OKMessage(c, "配置已保存", cfg)
}

type retrievalRequest struct {
	Query string      `json:"query"`
	Mode  search.Mode `json:"mode"`
}

// Retrieval 按当前知识库配置检索。
func (h *SearchHandler) Retrieval(c *gin.Context) {
	var req retrievalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	cfg, err := search.LoadKBConfig(c.Request.Context(), h.db)
	if err != nil {
		reqLog(c).Error("load kb config failed", slog.Any("error", err))
		Internal(c, "")
		return
	}
	hits, err := search.Retrieve(req.Query, req.Mode, cfg)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	OK(c, hits)
}

type cleanRequest struct {
	Text string `json:"text"`
}

// LLMClean 清洗大模型输出文本。
func (h *SearchHandler) LLMClean(c *gin.Context) {
	var req cleanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	OK(c, gin.H{"text": search.CleanLLMOutput(req.Text)})
}
