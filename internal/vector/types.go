// Package vector 定义向量集的结构化配置：字段选择、多表关联规则、索引参数与同步计划。
package vector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// Status 表示向量集的索引状态。
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// Valid 判断状态是否为已知取值。
func (s Status) Valid() bool {
	switch s {
	case StatusIndexed, StatusPending, StatusError:
		return true
	}
	return false
}

var titlePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ErrInvalidTitle 标题为空或包含字母、数字、下划线以外的字符。
var ErrInvalidTitle = errors.New("vector title must contain only letters, digits and underscores")

// ValidateTitle 校验向量集标题。
func ValidateTitle(title string) error {
	if !titlePattern.MatchString(title) {
		return ErrInvalidTitle
	}
	return nil
}

// IndexTaskName 新建向量集时登记的索引任务名。
func IndexTaskName(title string) string {
	return "索引构建: " + title
}

// JoinType 多表关联方式。
type JoinType string

const (
	JoinOneToOne  JoinType = "one_to_one"
	JoinOneToMany JoinType = "one_to_many"
)

// Valid 判断关联方式是否为已知取值。
func (t JoinType) Valid() bool {
	return t == JoinOneToOne || t == JoinOneToMany
}

// JoinCondition 描述左右两表之间的一对字段等值关联。
type JoinCondition struct {
	LeftFieldID  string `json:"leftFieldId"`
	RightFieldID string `json:"rightFieldId"`
}

// JoinRules 多表向量集的关联配置。
type JoinRules struct {
	Type         JoinType        `json:"type"`
	LeftTableID  string          `json:"leftTableId,omitempty"`
	RightTableID string          `json:"rightTableId,omitempty"`
	Conditions   []JoinCondition `json:"conditions"`
}

var (
	ErrJoinType       = errors.New("join type must be one_to_one or one_to_many")
	ErrJoinSameTable  = errors.New("join tables must differ")
	ErrJoinTables     = errors.New("join requires both left and right tables")
	ErrJoinConditions = errors.New("join requires at least one condition")
)

// Validate 检查关联配置是否完整。
func (r JoinRules) Validate() error {
	if !r.Type.Valid() {
		return ErrJoinType
	}
	if r.LeftTableID == "" || r.RightTableID == "" {
		return ErrJoinTables
	}
	if r.LeftTableID == r.RightTableID {
		return ErrJoinSameTable
	}
	if len(r.Conditions) == 0 {
		return ErrJoinConditions
	}
	for i, cond := range r.Conditions {
		if cond.LeftFieldID == "" || cond.RightFieldID == "" {
			return fmt.Errorf("join condition %d: both fields are required", i+1)
		}
	}
	return nil
}

// ParseJoinRules 兼容两种历史格式：直接的 JSON 对象，以及被再次编码成字符串的 JSON。
// 空值与 null 返回 nil。
func ParseJoinRules(raw []byte) (*JoinRules, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode join rules string: %w", err)
		}
		if strings.TrimSpace(inner) == "" {
			return nil, nil
		}
		raw = []byte(inner)
	}

	var rules JoinRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode join rules: %w", err)
	}
	return &rules, nil
}

// SelectedField 被选中参与向量化的字段。
type SelectedField struct {
	TableID string `json:"tableId"`
	FieldID string `json:"fieldId"`
	Name    string `json:"name,omitempty"`
}

// FieldNames 返回逗号分隔的字段名摘要，用于列表展示。
func FieldNames(fields []SelectedField) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		name := f.Name
		if name == "" {
			name = f.FieldID
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// IndexType 索引算法。
type IndexType string

const (
	IndexHNSW    IndexType = "hnsw"
	IndexIVFFlat IndexType = "ivf_flat"
	IndexFlat    IndexType = "flat"
)

// Metric 相似度度量。
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricIP     Metric = "ip"
)

// Compression 向量压缩方式。
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionPQ   Compression = "pq"
	CompressionSQ8  Compression = "sq8"
)

// IndexConfig 向导中"高级设置"的索引参数。
type IndexConfig struct {
	IndexType      IndexType   `json:"indexType"`
	Metric         Metric      `json:"metric"`
	Compression    Compression `json:"compression"`
	M              int         `json:"m,omitempty"`
	EfConstruction int         `json:"efConstruction,omitempty"`
	Nlist          int         `json:"nlist,omitempty"`
}

// DefaultIndexConfig 返回 HNSW + cosine 的默认配置。
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		IndexType:      IndexHNSW,
		Metric:         MetricCosine,
		Compression:    CompressionNone,
		M:              16,
		EfConstruction: 200,
	}
}

// Validate 检查索引参数。零值字段视为使用默认值。
func (c IndexConfig) Validate() error {
	switch c.IndexType {
	case "", IndexFlat:
	case IndexHNSW:
		if c.M < 0 || c.EfConstruction < 0 {
			return errors.New("hnsw parameters must not be negative")
		}
	case IndexIVFFlat:
		if c.Nlist < 0 {
			return errors.New("nlist must not be negative")
		}
	default:
		return fmt.Errorf("unknown index type %q", c.IndexType)
	}
	switch c.Metric {
	case "", MetricCosine, MetricL2, MetricIP:
	default:
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	switch c.Compression {
	case "", CompressionNone, CompressionPQ, CompressionSQ8:
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	return nil
}

// WithDefaults 用默认值填充零值字段。
func (c IndexConfig) WithDefaults() IndexConfig {
	def := DefaultIndexConfig()
	if c.IndexType == "" {
		c.IndexType = def.IndexType
	}
	if c.Metric == "" {
		c.Metric = def.Metric
	}
	if c.Compression == "" {
		c.Compression = def.Compression
	}
	if c.IndexType == IndexHNSW {
		if c.M == 0 {
			c.M = def.M
		}
		if c.EfConstruction == 0 {
			c.EfConstruction = def.EfConstruction
		}
	}
	if c.IndexType == IndexIVFFlat && c.Nlist == 0 {
		c.Nlist = 128
	}
	return c
}

// CronConfig 定时同步配置。
type CronConfig struct {
	Enabled    bool   `json:"enabled"`
	Expression string `json:"expression"`
}

// Validate 启用时表达式必须是标准五段 cron。
func (c CronConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := ParseCron(c.Expression); err != nil {
		return err
	}
	return nil
}

// ParseCron 按标准五段格式解析表达式，同时接受 @daily 等描述符。
func ParseCron(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}
