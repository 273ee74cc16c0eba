package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *OpenAIChatModel {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewOpenAIChatModel(Config{Provider: ProviderOpenAI, APIKey: "test-key", ModelID: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)
	return m
}

func searchToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "search",
		Desc: "Search for documents in the index",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "Search query", Required: true},
		}),
	}
}

func TestGenerateWithToolCalls(t *testing.T) {
	var got openai.ChatCompletionRequest
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "search", "arguments": "{\"query\":\"revenue\"}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	bound, err := m.WithTools([]*schema.ToolInfo{searchToolInfo()})
	require.NoError(t, err)

	msg, err := bound.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("system prompt"),
		schema.UserMessage("find revenue"),
	})
	require.NoError(t, err)

	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "search", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"revenue"}`, msg.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 15, msg.ResponseMeta.Usage.TotalTokens)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "search", got.Tools[0].Function.Name)
	assert.Equal(t, "auto", got.ToolChoice)

	params, err := json.Marshal(got.Tools[0].Function.Parameters)
	require.NoError(t, err)
	assert.Contains(t, string(params), `"query"`)
	assert.Contains(t, string(params), `"required":["query"]`)

	assert.Empty(t, m.tools, "WithTools must not mutate the receiver")
}

func TestStreamConcatenatesDeltas(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()

	var parts []*schema.Message
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		parts = append(parts, msg)
	}

	full, err := schema.ConcatMessages(parts)
	require.NoError(t, err)
	assert.Equal(t, "Hello", full.Content)
	assert.Empty(t, full.ToolCalls)
}

func TestStreamToolCallDeltas(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"get_document","arguments":"{\"document_"}}]}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"id\":\"doc-1\"}"}}]}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("open doc-1")})
	require.NoError(t, err)
	defer sr.Close()

	var parts []*schema.Message
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		parts = append(parts, msg)
	}

	full, err := schema.ConcatMessages(parts)
	require.NoError(t, err)
	require.Len(t, full.ToolCalls, 1)
	assert.Equal(t, "call_9", full.ToolCalls[0].ID)
	assert.Equal(t, "get_document", full.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"document_id":"doc-1"}`, full.ToolCalls[0].Function.Arguments)
}

func TestConvertMessages(t *testing.T) {
	idx := 0
	msgs := convertMessages([]*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hello"),
		{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				Index:    &idx,
				ID:       "call_1",
				Function: schema.FunctionCall{Name: "search", Arguments: `{}`},
			}},
		},
		schema.ToolMessage(`{"ok":true}`, "call_1"),
		nil,
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, openai.ToolTypeFunction, msgs[2].ToolCalls[0].Type)
	assert.Equal(t, openai.ChatMessageRoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "bogus"})
	assert.ErrorContains(t, err, "unknown llm provider")

	_, err = New(context.Background(), Config{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: ProviderArk})
	assert.Error(t, err)
}
