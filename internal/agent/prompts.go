package agent

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// SystemPrompt 为文档检索 Agent 的系统提示词。
const SystemPrompt = "You are a document index agent with access to a document database. " +
	"Your task is to help users find and analyze documents by using the provided tools. " +
	"For each user query, think about which tools would be most appropriate to use. " +
	"Always provide concise, helpful responses based on the document content. " +
	"If you don't know the answer or can't find relevant documents, say so clearly. " +
	"Do not make up information that isn't in the documents."

// sanitizeToolCalls 返回一份参数非法（空串、null、非 JSON）时替换为 {} 的模型回复副本。
// 部分模型在下一轮会拒绝历史里非法的 arguments。
func sanitizeToolCalls(msg *schema.Message) *schema.Message {
	if msg == nil || len(msg.ToolCalls) == 0 {
		return msg
	}
	var calls []schema.ToolCall
	for i := range msg.ToolCalls {
		args := strings.TrimSpace(msg.ToolCalls[i].Function.Arguments)
		if args != "" && args != "null" && json.Valid([]byte(args)) {
			continue
		}
		if calls == nil {
			calls = append([]schema.ToolCall(nil), msg.ToolCalls...)
		}
		calls[i].Function.Arguments = "{}"
	}
	if calls == nil {
		return msg
	}
	cp := *msg
	cp.ToolCalls = calls
	return &cp
}

// toolResultMessage 把一次工具执行结果包装为与调用 ID 对应的 Tool 消息。
func toolResultMessage(call schema.ToolCall, result any) *schema.Message {
	args := json.RawMessage(normalizeArgs(call.Function.Arguments))
	if !json.Valid(args) {
		args = json.RawMessage("{}")
	}
	payload := map[string]any{
		"tool":   call.Function.Name,
		"args":   args,
		"result": result,
	}
	content, err := json.Marshal(payload)
	if err != nil {
		content, _ = json.Marshal(map[string]any{
			"tool":   call.Function.Name,
			"args":   args,
			"result": errorResult(err),
		})
	}
	msg := schema.ToolMessage(string(content), call.ID)
	msg.ToolName = call.Function.Name
	return msg
}
