package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

// TagFilter 匹配一个文档标签；Key 为空时只比较 Value。
type TagFilter struct {
	Key   string
	Value string
}

// ChunkSearch 为候选 chunk 的粗筛条件，排序由上层负责。
//
// 所有字段都是可选过滤条件，零值表示不参与过滤：
//   - Terms 中任一词命中 chunk 内容或文档标题即为候选（SQL LIKE，ASCII 大小写不敏感）。
//   - SourceTypes/DocumentSets 为集合过滤；Tags 任一命中即可。
//   - TimeCutoff 过滤 DocUpdatedAt >= TimeCutoff 的文档。
type ChunkSearch struct {
	Terms        []string
	SourceTypes  []string
	DocumentSets []string
	Tags         []TagFilter
	TimeCutoff   *time.Time
	// Limit 限制候选条数；<=0 使用默认值。
	Limit int
}

// ChunkRange 按文档 ID 取回一段连续 chunk；Min/Max 为 nil 表示不设边界。
type ChunkRange struct {
	DocumentID    string
	MinChunkIndex *int
	MaxChunkIndex *int
}

// DocumentQuery 用于列出文档。
type DocumentQuery struct {
	SourceType string
	Limit      int
	// Desc 按 UpdatedAt 倒序返回（优先返回最近写入的文档）。
	Desc bool
}

// UpsertDocuments 写入文档及其 chunk/标签/集合；已存在的同 ID 文档会被整体替换。
func (s *Storage) UpsertDocuments(ctx context.Context, docs []Document) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if len(docs) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range docs {
			if err := upsertDocument(tx, &docs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertDocument(tx *gorm.DB, doc *Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}
	if doc.SourceType == "" {
		doc.SourceType = "file"
	}
	doc.ChunkCount = len(doc.Chunks)

	chunks, tags, sets := doc.Chunks, doc.Tags, doc.Sets
	for i := range chunks {
		chunks[i].ID = 0
		chunks[i].DocumentID = doc.ID
	}
	for i := range tags {
		tags[i].ID = 0
		tags[i].DocumentID = doc.ID
	}
	for i := range sets {
		sets[i].ID = 0
		sets[i].DocumentID = doc.ID
	}

	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(doc).Error; err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	for _, model := range []any{&Chunk{}, &DocumentTag{}, &DocumentSetMember{}} {
		if err := tx.Where("document_id = ?", doc.ID).Delete(model).Error; err != nil {
			return fmt.Errorf("clear children of %s: %w", doc.ID, err)
		}
	}

	if len(chunks) > 0 {
		if err := tx.CreateInBatches(chunks, 200).Error; err != nil {
			return fmt.Errorf("insert chunks of %s: %w", doc.ID, err)
		}
	}
	if len(tags) > 0 {
		if err := tx.Create(&tags).Error; err != nil {
			return fmt.Errorf("insert tags of %s: %w", doc.ID, err)
		}
	}
	if len(sets) > 0 {
		if err := tx.Create(&sets).Error; err != nil {
			return fmt.Errorf("insert document sets of %s: %w", doc.ID, err)
		}
	}
	return nil
}

// GetDocument 按 ID 读取文档（含标签和集合，不含 chunk）。
func (s *Storage) GetDocument(ctx context.Context, id string) (*Document, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	var doc Document
	err := s.db.WithContext(ctx).Preload("Tags").Preload("Sets").Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gormNotFoundError("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// GetDocuments 批量读取文档，返回以 ID 为键的 map；不存在的 ID 被忽略。
func (s *Storage) GetDocuments(ctx context.Context, ids []string) (map[string]Document, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	out := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var docs []Document
	if err := s.db.WithContext(ctx).Preload("Tags").Preload("Sets").Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

func (s *Storage) ListDocuments(ctx context.Context, q DocumentQuery) ([]Document, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	db := s.db.WithContext(ctx).Model(&Document{})
	if q.SourceType != "" {
		db = db.Where("source_type = ?", q.SourceType)
	}
	if q.Desc {
		db = db.Order("updated_at DESC")
	} else {
		db = db.Order("updated_at ASC")
	}

	var out []Document
	if err := db.Limit(normalizeLimit(q.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// DeleteDocument 删除文档，chunk/标签/集合通过外键级联删除。
func (s *Storage) DeleteDocument(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gormNotFoundError("document", id)
	}
	return nil
}

// QueryChunkRange 返回某文档在 [Min, Max] 区间内的 chunk，按 ChunkIndex 升序。
func (s *Storage) QueryChunkRange(ctx context.Context, r ChunkRange) ([]Chunk, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	db := s.db.WithContext(ctx).Model(&Chunk{}).Where("document_id = ?", r.DocumentID)
	if r.MinChunkIndex != nil {
		db = db.Where("chunk_index >= ?", *r.MinChunkIndex)
	}
	if r.MaxChunkIndex != nil {
		db = db.Where("chunk_index <= ?", *r.MaxChunkIndex)
	}

	var out []Chunk
	if err := db.Order("chunk_index ASC").Limit(maxLimit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query chunk range: %w", err)
	}
	return out, nil
}

// SearchChunks 按 ChunkSearch 粗筛候选 chunk。
func (s *Storage) SearchChunks(ctx context.Context, q ChunkSearch) ([]Chunk, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	db := s.db.WithContext(ctx).Model(&Chunk{}).
		Select("chunks.*").
		Joins("JOIN documents ON documents.id = chunks.document_id")

	if len(q.SourceTypes) > 0 {
		db = db.Where("documents.source_type IN ?", q.SourceTypes)
	}
	if q.TimeCutoff != nil {
		db = db.Where("documents.doc_updated_at >= ?", *q.TimeCutoff)
	}
	if len(q.DocumentSets) > 0 {
		sub := s.db.Model(&DocumentSetMember{}).Select("document_id").Where("set_name IN ?", q.DocumentSets)
		db = db.Where("chunks.document_id IN (?)", sub)
	}
	if len(q.Tags) > 0 {
		cond := s.db.Where("1 = 0")
		for _, tag := range q.Tags {
			if tag.Key == "" {
				cond = cond.Or("tag_value = ?", tag.Value)
			} else {
				cond = cond.Or("tag_key = ? AND tag_value = ?", tag.Key, tag.Value)
			}
		}
		sub := s.db.Model(&DocumentTag{}).Select("document_id").Where(cond)
		db = db.Where("chunks.document_id IN (?)", sub)
	}
	if len(q.Terms) > 0 {
		cond := s.db.Where("1 = 0")
		for _, term := range q.Terms {
			like := "%" + term + "%"
			cond = cond.Or("chunks.content LIKE ?", like).Or("documents.semantic_identifier LIKE ?", like)
		}
		db = db.Where(cond)
	}

	var out []Chunk
	if err := db.Order("chunks.id ASC").Limit(normalizeLimit(q.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return out, nil
}

func (s *Storage) CountDocuments(ctx context.Context) (int64, error) {
	return s.count(ctx, &Document{})
}

func (s *Storage) CountChunks(ctx context.Context) (int64, error) {
	return s.count(ctx, &Chunk{})
}

func (s *Storage) count(ctx context.Context, model any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	if v > maxDeleteLimit {
		return maxDeleteLimit
	}
	return v
}

type notFoundError struct {
	Entity string
	ID     any
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.ID)
}

func gormNotFoundError(entity string, id any) error {
	return notFoundError{Entity: entity, ID: id}
}

// IsNotFound 判断错误是否为记录不存在。
func IsNotFound(err error) bool {
	var nf notFoundError
	return errors.As(err, &nf)
}
