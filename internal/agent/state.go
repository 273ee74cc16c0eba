package agent

import (
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/DocAgent/internal/docindex"
)

// DocumentInfo 是 Agent 视角下的一篇文档（取自检索结果的中心 chunk）。
type DocumentInfo struct {
	DocumentID string
	Content    string
	Title      string
	SourceType string
	Link       string
	Score      *float64
	UpdateTime *time.Time
	Metadata   map[string]string
}

func documentFromChunk(c docindex.InferenceChunk) DocumentInfo {
	title := c.SemanticIdentifier
	if title == "" {
		title = "Unknown"
	}
	return DocumentInfo{
		DocumentID: c.DocumentID,
		Content:    c.Content,
		Title:      title,
		SourceType: c.SourceType,
		Link:       c.SourceLinks[0],
		Score:      c.Score,
		UpdateTime: c.UpdatedAt,
		Metadata:   c.Metadata,
	}
}

// ToolResultEntry 为一次工具执行的结果记录。
type ToolResultEntry struct {
	Timestamp time.Time
	Result    any
}

// AgentState 保存一个 Agent 实例生命周期内的会话状态，不做持久化。
//
// RetrievedDocuments 只追加不删除；ToolResults 以模型给出的原始工具名为键，按执行顺序保存。
// AgentState 不是并发安全的，同一实例不应同时处理多个查询。
type AgentState struct {
	// 用户消息与最终回答（不含中间的工具往返）
	Messages []*schema.Message

	RetrievedDocuments []DocumentInfo

	// 调用方可写入的上下文信息
	Context map[string]any

	ToolResults map[string][]ToolResultEntry
}

func NewAgentState() *AgentState {
	return &AgentState{
		Context:     make(map[string]any),
		ToolResults: make(map[string][]ToolResultEntry),
	}
}

func (s *AgentState) AddMessage(msg *schema.Message) {
	if msg == nil {
		return
	}
	s.Messages = append(s.Messages, msg)
}

func (s *AgentState) AddDocuments(docs ...DocumentInfo) {
	s.RetrievedDocuments = append(s.RetrievedDocuments, docs...)
}

func (s *AgentState) SetContext(key string, value any) {
	s.Context[key] = value
}

func (s *AgentState) RecordToolResult(name string, result any) {
	s.ToolResults[name] = append(s.ToolResults[name], ToolResultEntry{
		Timestamp: time.Now(),
		Result:    result,
	})
}
