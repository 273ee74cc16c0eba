package storage

import "time"

// Document 表示一篇被索引的文档（例如一个 PDF 文件）。
//
// 文档正文不直接存放在这里，而是切分成若干 Chunk；检索与按 ID 取回都以 Chunk 为单位。
type Document struct {
	// ID 为文档唯一标识（稳定 ID，例如基于文件路径生成），由写入方决定。
	ID string `gorm:"primaryKey;size:128"`
	// SemanticIdentifier 为展示用的标题（PDF Title 元数据或文件名）。
	SemanticIdentifier string `gorm:"size:512;index"`
	// SourceType 表示文档来源（file/web/...），用于检索过滤。
	SourceType string `gorm:"size:64;not null;index"`
	// Link 为文档原始位置，例如 file:///abs/path.pdf。
	Link string `gorm:"size:2048"`
	// Metadata 为文档属性（作者、创建工具等），以 JSON 存放。
	Metadata map[string]string `gorm:"serializer:json;type:text"`
	// DocUpdatedAt 为文档本身的更新时间（文件修改时间），用于 time_cutoff 过滤。
	DocUpdatedAt *time.Time `gorm:"index"`
	// ChunkCount 冗余记录 chunk 数量，便于展示。
	ChunkCount int `gorm:"not null"`

	Chunks []Chunk             `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	Tags   []DocumentTag       `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	Sets   []DocumentSetMember `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// Chunk 是检索的最小单元；(DocumentID, ChunkIndex) 唯一。
type Chunk struct {
	ID         uint64 `gorm:"primaryKey"`
	DocumentID string `gorm:"size:128;not null;uniqueIndex:idx_chunks_document_index,priority:1"`
	ChunkIndex int    `gorm:"not null;uniqueIndex:idx_chunks_document_index,priority:2"`
	Content    string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// DocumentTag 为文档的键值标签；Key 为空时表示纯值标签。
type DocumentTag struct {
	ID         uint64 `gorm:"primaryKey"`
	DocumentID string `gorm:"size:128;not null;index"`
	TagKey     string `gorm:"size:128;index:idx_document_tags_kv,priority:1"`
	TagValue   string `gorm:"size:512;not null;index:idx_document_tags_kv,priority:2"`
}

// DocumentSetMember 记录文档属于哪些文档集合。
type DocumentSetMember struct {
	ID         uint64 `gorm:"primaryKey"`
	DocumentID string `gorm:"size:128;not null;index"`
	SetName    string `gorm:"size:255;not null;index"`
}

// AuditRecord 记录一次工具调用及其结果，用于审计与追溯。
//
// 一条记录对应 Agent 的一次工具执行（例如 search / get_document）。
// 入参与输出统一以 JSON 字符串存放，过大时会被截断。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一次用户提问内的多次工具调用。
	TraceID string `gorm:"size:64;index"`
	// Action 为工具名。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放工具入参。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放工具输出（可能已截断）。
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 表示执行起止时间。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为写入数据库的时间。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

const (
	AuditStatusRunning = "running"
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)
