package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/DocAgent/internal/docindex"
)

// scriptedModel 依次返回预设回复，用完后重复最后一条。
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	err     error
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	idx := len(m.inputs) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}

// Stream 把正文按 3 个字符切片，工具调用放在最后一个片段里。
func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	var chunks []*schema.Message
	runes := []rune(msg.Content)
	for i := 0; i < len(runes); i += 3 {
		end := i + 3
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, schema.AssistantMessage(string(runes[i:end]), nil))
	}
	if len(msg.ToolCalls) > 0 {
		chunks = append(chunks, schema.AssistantMessage("", msg.ToolCalls))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.tools = tools
	return m, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func toolCallReply(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

// fakeIndex 同时实现 SearchPipeline 与 DocumentIndex。
type fakeIndex struct {
	sections []docindex.InferenceSection
	chunks   map[string][]docindex.InferenceChunk
	searches []docindex.SearchRequest
}

func (f *fakeIndex) Search(_ context.Context, req docindex.SearchRequest) ([]docindex.InferenceSection, error) {
	f.searches = append(f.searches, req)
	return f.sections, nil
}

func (f *fakeIndex) IDBasedRetrieval(_ context.Context, reqs []docindex.ChunkRequest, _ docindex.IndexFilters) ([]docindex.InferenceChunk, error) {
	var out []docindex.InferenceChunk
	for _, r := range reqs {
		for _, c := range f.chunks[r.DocumentID] {
			if r.MinChunkIndex != nil && c.ChunkID < *r.MinChunkIndex {
				continue
			}
			if r.MaxChunkIndex != nil && c.ChunkID > *r.MaxChunkIndex {
				continue
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func testChunk(docID string, chunkID int, content string) docindex.InferenceChunk {
	score := 0.5
	return docindex.InferenceChunk{
		DocumentID:         docID,
		ChunkID:            chunkID,
		Content:            content,
		SemanticIdentifier: "Title " + docID,
		SourceType:         "file",
		SourceLinks:        map[int]string{0: "file:///" + docID + ".pdf"},
		Score:              &score,
	}
}

func newFakeIndex(docIDs ...string) *fakeIndex {
	f := &fakeIndex{chunks: make(map[string][]docindex.InferenceChunk)}
	for _, id := range docIDs {
		c := testChunk(id, 0, "content of "+id)
		f.chunks[id] = []docindex.InferenceChunk{c, testChunk(id, 1, "second chunk of "+id)}
		f.sections = append(f.sections, docindex.InferenceSection{CenterChunk: c, Chunks: []docindex.InferenceChunk{c}})
	}
	return f
}

func newTestDispatcher(idx *fakeIndex, llm *scriptedModel) (*Dispatcher, *AgentState) {
	tools := &DocumentTools{pipeline: idx, index: idx}
	if llm != nil {
		tools.llm = llm
	}
	state := NewAgentState()
	return NewDispatcher(tools, state, nil), state
}
