package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vectorAdmin/internal/database"
)

// RetrievalMode 知识库检索模式。
type RetrievalMode string

const (
	RetrievalHybrid RetrievalMode = "hybrid"
	RetrievalDense  RetrievalMode = "dense"
	RetrievalSparse RetrievalMode = "sparse"
)

// EmbeddingModels 可选的 Embedding 模型。
var EmbeddingModels = []string{"text-embedding-3-small", "text-embedding-3-large", "m3e-base"}

// KBConfig 默认知识库配置，持久化在 settings 表的 kb.config 中。
type KBConfig struct {
	Name           string        `json:"name"`
	ChunkSize      int           `json:"chunkSize"`
	RetrievalMode  RetrievalMode `json:"retrievalMode"`
	EmbeddingModel string        `json:"embeddingModel"`
	TopK           int           `json:"topK"`
	ScoreThreshold float64       `json:"scoreThreshold"`
}

// DefaultKBConfig 返回默认配置。
func DefaultKBConfig() KBConfig {
	return KBConfig{
		Name:           "Default KB",
		ChunkSize:      512,
		RetrievalMode:  RetrievalHybrid,
		EmbeddingModel: EmbeddingModels[0],
		TopK:           3,
		ScoreThreshold: 0.5,
	}
}

// Validate 校验配置取值。
func (c KBConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	if c.ChunkSize < 64 || c.ChunkSize > 8192 {
		return fmt.Errorf("chunkSize must be between 64 and 8192, got %d", c.ChunkSize)
	}
	switch c.RetrievalMode {
	case RetrievalHybrid, RetrievalDense, RetrievalSparse:
	default:
		return fmt.Errorf("unknown retrieval mode %q", c.RetrievalMode)
	}
	known := false
	for _, m := range EmbeddingModels {
		if m == c.EmbeddingModel {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown embedding model %q", c.EmbeddingModel)
	}
	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("topK must be between 1 and %d", MaxTopK)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return errors.New("scoreThreshold must be between 0 and 1")
	}
	return nil
}

// LoadKBConfig 读取配置，未保存或内容损坏时返回默认值。
func LoadKBConfig(ctx context.Context, db *gorm.DB) (KBConfig, error) {
	cfg := DefaultKBConfig()
	var setting database.Setting
	err := db.WithContext(ctx).First(&setting, "key = ?", database.SettingKBConfig).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("load kb config: %w", err)
	}
	if err := json.Unmarshal([]byte(setting.Value), &cfg); err != nil {
		return DefaultKBConfig(), nil
	}
	return cfg, nil
}

// SaveKBConfig 校验并保存配置。
func SaveKBConfig(ctx context.Context, db *gorm.DB, cfg KBConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal kb config: %w", err)
	}
	setting := database.Setting{Key: database.SettingKBConfig, Value: string(raw)}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("save kb config: %w", err)
	}
	return nil
}

// KBHit 知识库检索结果。
type KBHit struct {
	ID      int     `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

var kbCorpus = []KBHit{
	{ID: 1, Content: "向量数据库是一种专门用于存储、管理和查询向量数据的数据库系统。", Score: 0.92, Source: "技术白皮书_v1.pdf"},
	{ID: 2, Content: "Embeddings 是数据的向量表示，使得语义相似的数据在向量空间中距离更近。", Score: 0.88, Source: "API_Docs.md"},
	{ID: 3, Content: "Hybrid Search 结合了关键词搜索和向量搜索的优势，提高了检索的准确性。", Score: 0.85, Source: "Architecture_Review.pptx"},
}

// Retrieve 在内置语料上做模拟检索。
// exact 模式只保留包含查询词的条目，其余模式按得分返回；结果受 topK 与阈值约束。
func Retrieve(query string, mode Mode, cfg KBConfig) ([]KBHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
	hits := make([]KBHit, 0, len(kbCorpus))
	lower := strings.ToLower(query)
	for _, h := range kbCorpus {
		if mode == ModeExact && !strings.Contains(strings.ToLower(h.Content), lower) {
			continue
		}
		if h.Score < cfg.ScoreThreshold {
			continue
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if cfg.TopK > 0 && len(hits) > cfg.TopK {
		hits = hits[:cfg.TopK]
	}
	return hits, nil
}
