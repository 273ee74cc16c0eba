// Package docindex 定义文档检索接口（检索管线 + 按 ID 取回），并提供基于 SQLite 的实现。
package docindex

import (
	"context"
	"strings"
	"time"
)

type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchKeyword  SearchType = "keyword"
	SearchHybrid   SearchType = "hybrid"
)

// ParseSearchType 大小写不敏感地识别 keyword/hybrid，其余一律按 semantic 处理。
func ParseSearchType(s string) SearchType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SearchKeyword):
		return SearchKeyword
	case string(SearchHybrid):
		return SearchHybrid
	default:
		return SearchSemantic
	}
}

// Tag 为文档标签；Key 为空表示只按值匹配。
type Tag struct {
	Key   string `json:"tag_key"`
	Value string `json:"tag_value"`
}

// ParseTag 解析 "key=value" 或纯值形式的标签。
func ParseTag(s string) Tag {
	s = strings.TrimSpace(s)
	if k, v, ok := strings.Cut(s, "="); ok {
		return Tag{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)}
	}
	return Tag{Value: s}
}

// IndexFilters 为检索过滤条件，零值表示不过滤。
type IndexFilters struct {
	SourceType  []string
	DocumentSet []string
	TimeCutoff  *time.Time
	Tags        []Tag
}

func (f IndexFilters) IsEmpty() bool {
	return len(f.SourceType) == 0 && len(f.DocumentSet) == 0 && f.TimeCutoff == nil && len(f.Tags) == 0
}

type SearchRequest struct {
	Query      string
	SearchType SearchType
	Filters    IndexFilters
	// Limit 为返回 section 的上限；<=0 使用默认值。
	Limit int
}

// InferenceChunk 是检索返回的一个 chunk，附带所属文档的展示信息。
type InferenceChunk struct {
	DocumentID         string
	ChunkID            int
	Content            string
	SemanticIdentifier string
	SourceType         string
	// SourceLinks 以 chunk 内偏移为键；目前只有 0 号链接（文档本身）。
	SourceLinks map[int]string
	Score       *float64
	UpdatedAt   *time.Time
	Metadata    map[string]string
}

// InferenceSection 以一个中心 chunk 代表一篇文档的命中结果。
type InferenceSection struct {
	CenterChunk InferenceChunk
	Chunks      []InferenceChunk
}

// ChunkRequest 请求某文档 [MinChunkIndex, MaxChunkIndex] 区间的 chunk；nil 表示不设边界。
type ChunkRequest struct {
	DocumentID    string
	MinChunkIndex *int
	MaxChunkIndex *int
}

// SearchPipeline 接收检索请求并返回已排序的 section。
type SearchPipeline interface {
	Search(ctx context.Context, req SearchRequest) ([]InferenceSection, error)
}

// DocumentIndex 支持按文档 ID 和 chunk 区间取回。
type DocumentIndex interface {
	IDBasedRetrieval(ctx context.Context, reqs []ChunkRequest, filters IndexFilters) ([]InferenceChunk, error)
}
