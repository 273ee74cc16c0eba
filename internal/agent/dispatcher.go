package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/storage"
)

const snippetChars = 200

// Dispatcher 把模型的工具调用路由到 DocumentTools，并把检索到的文档记录进 AgentState。
type Dispatcher struct {
	tools *DocumentTools
	state *AgentState
	audit auditor
}

func NewDispatcher(tools *DocumentTools, state *AgentState, store *storage.Storage) *Dispatcher {
	return &Dispatcher{tools: tools, state: state, audit: auditor{store: store}}
}

// Dispatch 执行一次工具调用，返回可 JSON 序列化的结果。
//
// 未知工具、参数错误和执行错误都不会返回 error，而是返回 {"error": msg}，且不修改状态。
func (d *Dispatcher) Dispatch(ctx context.Context, name, argsJSON string) any {
	result, err := d.audit.run(ctx, name, argsJSON, func(ctx context.Context) (any, error) {
		call, err := DecodeCall(name, argsJSON)
		if err != nil {
			return nil, err
		}
		return d.execute(ctx, call)
	})
	if err != nil {
		log.Errorf("error executing tool %s: %v", name, err)
		return errorResult(err)
	}
	return result
}

func (d *Dispatcher) execute(ctx context.Context, call Call) (any, error) {
	switch c := call.(type) {
	case SearchCall:
		docs, err := d.tools.Search(ctx, c)
		if err != nil {
			return nil, err
		}
		d.state.AddDocuments(docs...)
		return snippets(docs), nil

	case GetDocumentCall:
		doc, err := d.tools.GetDocument(ctx, c.DocumentID, c.ChunkIndex)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, nil
		}
		d.state.AddDocuments(*doc)
		return fullDocument(*doc), nil

	case GetRelatedDocumentsCall:
		docs, err := d.tools.GetRelatedDocuments(ctx, c.DocumentID, c.Limit)
		if err != nil {
			return nil, err
		}
		d.state.AddDocuments(docs...)
		return snippets(docs), nil

	case SummarizeDocumentsCall:
		return d.tools.SummarizeDocuments(ctx, c.DocumentIDs)

	case ExtractEntitiesCall:
		return d.tools.ExtractEntities(ctx, c.Text)

	default:
		return nil, fmt.Errorf("unsupported tool call %T", call)
	}
}

func errorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

type documentSnippet struct {
	DocumentID     string   `json:"document_id"`
	Title          string   `json:"title"`
	ContentSnippet string   `json:"content_snippet"`
	SourceType     *string  `json:"source_type"`
	Link           *string  `json:"link"`
	Score          *float64 `json:"score"`
	UpdateTime     *string  `json:"update_time"`
}

type documentBody struct {
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	SourceType *string           `json:"source_type"`
	Link       *string           `json:"link"`
	UpdateTime *string           `json:"update_time"`
	Metadata   map[string]string `json:"metadata"`
}

func snippets(docs []DocumentInfo) []documentSnippet {
	out := make([]documentSnippet, 0, len(docs))
	for _, doc := range docs {
		snippet := doc.Content
		if cut := truncateRunes(snippet, snippetChars); len(cut) < len(snippet) {
			snippet = cut + "..."
		}
		out = append(out, documentSnippet{
			DocumentID:     doc.DocumentID,
			Title:          doc.Title,
			ContentSnippet: snippet,
			SourceType:     optional(doc.SourceType),
			Link:           optional(doc.Link),
			Score:          doc.Score,
			UpdateTime:     isoTime(doc.UpdateTime),
		})
	}
	return out
}

func fullDocument(doc DocumentInfo) documentBody {
	return documentBody{
		DocumentID: doc.DocumentID,
		Title:      doc.Title,
		Content:    doc.Content,
		SourceType: optional(doc.SourceType),
		Link:       optional(doc.Link),
		UpdateTime: isoTime(doc.UpdateTime),
		Metadata:   doc.Metadata,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
