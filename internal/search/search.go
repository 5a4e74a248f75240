// Package search 提供模拟的向量检索、知识库检索以及大模型输出清洗。
// 检索结果均为合成数据，不做真实的向量计算。
package search

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	// DefaultTopK 未指定 topK 时返回的条数。
	DefaultTopK = 2
	// MaxTopK topK 上限。
	MaxTopK = 20
)

// Mode 检索模式。
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
	ModeExact    Mode = "exact"
)

// ErrEmptyQuery 查询语句为空。
var ErrEmptyQuery = errors.New("query is empty")

// Valid 空值视为默认模式。
func (m Mode) Valid() bool {
	switch m {
	case "", ModeSemantic, ModeHybrid, ModeExact:
		return true
	}
	return false
}

// Request 向量检索请求。
type Request struct {
	VectorID string `json:"vectorId"`
	Query    string `json:"query"`
	TopK     int    `json:"topK"`
	Mode     Mode   `json:"mode"`
}

// Hit 单条检索结果。
type Hit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

// Vector 按 topK 生成得分递减的合成结果。
func Vector(req Request) ([]Hit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("unknown search mode %q", req.Mode)
	}
	k := clampTopK(req.TopK)
	hits := make([]Hit, 0, k)
	for i := 1; i <= k; i++ {
		hits = append(hits, Hit{
			Content: fmt.Sprintf("Result %d for %s", i, query),
			Score:   score(i),
			Source:  fmt.Sprintf("doc%d.pdf", i),
		})
	}
	return hits, nil
}

// 第 1、2 条分别为 0.95、0.88，之后每条递减 0.07，最低 0.05
func score(rank int) float64 {
	s := 0.95 - 0.07*float64(rank-1)
	if s < 0.05 {
		s = 0.05
	}
	return math.Round(s*100) / 100
}

func clampTopK(k int) int {
	switch {
	case k <= 0:
		return DefaultTopK
	case k > MaxTopK:
		return MaxTopK
	}
	return k
}

var (
	boilerplate = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Here is the answer:`),
		regexp.MustCompile(`(?i)I hope this helps\.`),
	}
	blankLines = regexp.MustCompile(`\n\s*\n`)
)

// CleanLLMOutput 去掉常见的套话，合并空行并去除首尾空白。
func CleanLLMOutput(text string) string {
	for _, re := range boilerplate {
		text = re.ReplaceAllString(text, "")
	}
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
