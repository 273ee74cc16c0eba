package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/DocAgent/internal/docindex"
	"github.com/wwwzy/DocAgent/internal/log"
)

const (
	relatedQueryChars   = 1000
	summarizeDocChars   = 2000
	entityTextChars     = 5000
	noDocumentsToSumUp  = "No documents found to summarize."
	summarizeSystemText = "You are a document summarization assistant. " +
		"Summarize the following documents concisely while preserving key information."
)

// DocumentTools 实现五个文档工具，检索走 SearchPipeline/DocumentIndex，摘要与实体抽取走 ChatModel。
type DocumentTools struct {
	pipeline docindex.SearchPipeline
	index    docindex.DocumentIndex
	llm      model.BaseChatModel
}

func NewDocumentTools(pipeline docindex.SearchPipeline, index docindex.DocumentIndex, llm model.BaseChatModel) (*DocumentTools, error) {
	if pipeline == nil || index == nil {
		return nil, errors.New("document tools: search pipeline and document index are required")
	}
	return &DocumentTools{pipeline: pipeline, index: index, llm: llm}, nil
}

func (t *DocumentTools) Search(ctx context.Context, c SearchCall) ([]DocumentInfo, error) {
	sections, err := t.pipeline.Search(ctx, docindex.SearchRequest{
		Query:      c.Query,
		SearchType: c.SearchType,
		Filters:    c.Filters,
		Limit:      c.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if c.Limit > 0 && len(sections) > c.Limit {
		sections = sections[:c.Limit]
	}

	docs := make([]DocumentInfo, 0, len(sections))
	for _, sec := range sections {
		docs = append(docs, documentFromChunk(sec.CenterChunk))
	}
	log.Debugf("search %q (%s) -> %d documents", c.Query, c.SearchType, len(docs))
	return docs, nil
}

// GetDocument 返回指定 chunk；找不到时返回 (nil, nil)。
func (t *DocumentTools) GetDocument(ctx context.Context, documentID string, chunkIndex int) (*DocumentInfo, error) {
	chunks, err := t.index.IDBasedRetrieval(ctx, []docindex.ChunkRequest{{
		DocumentID:    documentID,
		MinChunkIndex: &chunkIndex,
		MaxChunkIndex: &chunkIndex,
	}}, docindex.IndexFilters{})
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	doc := documentFromChunk(chunks[0])
	return &doc, nil
}

// GetRelatedDocuments 用文档开头的内容做一次语义检索，并排除文档自身。
func (t *DocumentTools) GetRelatedDocuments(ctx context.Context, documentID string, limit int) ([]DocumentInfo, error) {
	doc, err := t.GetDocument(ctx, documentID, 0)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []DocumentInfo{}, nil
	}

	found, err := t.Search(ctx, SearchCall{
		Query:      truncateRunes(doc.Content, relatedQueryChars),
		SearchType: docindex.SearchSemantic,
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, err
	}

	related := make([]DocumentInfo, 0, len(found))
	for _, d := range found {
		if d.DocumentID != documentID {
			related = append(related, d)
		}
	}
	if limit >= 0 && len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

func (t *DocumentTools) SummarizeDocuments(ctx context.Context, documentIDs []string) (string, error) {
	var parts []string
	for _, id := range documentIDs {
		doc, err := t.GetDocument(ctx, id, 0)
		if err != nil {
			return "", err
		}
		if doc == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("Document: %s\n%s", doc.Title, truncateRunes(doc.Content, summarizeDocChars)))
	}
	if len(parts) == 0 {
		return noDocumentsToSumUp, nil
	}

	resp, err := t.generate(ctx, []*schema.Message{
		schema.SystemMessage(summarizeSystemText),
		schema.UserMessage("Please summarize these documents:\n\n" + strings.Join(parts, "\n\n")),
	})
	if err != nil {
		return "", fmt.Errorf("summarize documents: %w", err)
	}
	return resp.Content, nil
}

func (t *DocumentTools) ExtractEntities(ctx context.Context, text string) (map[string]any, error) {
	resp, err := t.generate(ctx, []*schema.Message{
		schema.SystemMessage(entitySystemText),
		schema.UserMessage("Extract entities from this text:\n\n" + truncateRunes(text, entityTextChars)),
	})
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	return parseEntities(resp.Content), nil
}

func (t *DocumentTools) generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	if t.llm == nil {
		return nil, errors.New("chat model not configured")
	}
	resp, err := t.llm.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("chat model returned no message")
	}
	return resp, nil
}

// truncateRunes 按字符截断。
func truncateRunes(s string, n int) string {
	if n < 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
