// Package agent 实现文档检索 Agent：模型通过固定的五个工具检索、读取、关联、摘要文档并抽取实体。
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/DocAgent/internal/docindex"
	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/storage"
)

const DefaultMaxRounds = 10

type Config struct {
	// MaxRounds 为单次提问内最多的工具轮数，<=0 使用 DefaultMaxRounds。
	MaxRounds int `mapstructure:"max_rounds"`
	// IncludeHistory 为 true 时把之前的问答一并发给模型。
	IncludeHistory bool `mapstructure:"include_history"`
	// Audit 为 true 且 Store 非空时记录每次工具调用。
	Audit bool `mapstructure:"audit"`
}

// Answer 为一次提问的最终结果。
type Answer struct {
	// Content 为本次提问里模型输出的全部正文：工具轮中顺带的说明加上最终回答。
	Content string
	// Rounds 为实际执行的工具轮数。
	Rounds int
	// GaveUp 表示达到 MaxRounds 仍未得到最终回答。
	GaveUp bool
}

// Agent 持有自己的会话状态，不能被多个查询并发使用。
type Agent struct {
	chatModel  model.ToolCallingChatModel
	graph      compose.Runnable[[]*schema.Message, Answer]
	dispatcher *Dispatcher
	state      *AgentState
	cfg        Config
}

// Deps 为构造 Agent 所需的外部协作者。
type Deps struct {
	ChatModel model.ToolCallingChatModel
	Pipeline  docindex.SearchPipeline
	Index     docindex.DocumentIndex
	// Store 可选，用于工具审计。
	Store *storage.Storage
}

func New(deps Deps, cfg Config) (*Agent, error) {
	if deps.ChatModel == nil {
		return nil, errors.New("agent: chat model is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}

	tools, err := NewDocumentTools(deps.Pipeline, deps.Index, deps.ChatModel)
	if err != nil {
		return nil, err
	}
	bound, err := deps.ChatModel.WithTools(ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	var auditStore *storage.Storage
	if cfg.Audit {
		auditStore = deps.Store
	}
	state := NewAgentState()
	a := &Agent{
		chatModel:  bound,
		dispatcher: NewDispatcher(tools, state, auditStore),
		state:      state,
		cfg:        cfg,
	}
	if a.graph, err = a.buildGraph(context.Background()); err != nil {
		return nil, fmt.Errorf("build agent graph: %w", err)
	}
	return a, nil
}

func (a *Agent) State() *AgentState {
	return a.state
}

// ProcessQuery 返回最终回答文本；达到轮数上限时返回放弃说明。
func (a *Agent) ProcessQuery(ctx context.Context, query string) (string, error) {
	ans, err := a.Run(ctx, query)
	if err != nil {
		return "", err
	}
	return ans.Content, nil
}

// Run 执行工具调用循环直到模型给出不含工具调用的回答，或达到 MaxRounds。
func (a *Agent) Run(ctx context.Context, query string) (Answer, error) {
	t := &turn{}
	ans, err := a.graph.Invoke(withTurn(ctx, t), a.begin(query))
	if errors.Is(err, compose.ErrExceedMaxSteps) {
		return a.giveUp(t.narration.String()), nil
	}
	if err != nil {
		return Answer{}, err
	}
	return ans, nil
}

// begin 记录用户消息并组装首轮输入。
func (a *Agent) begin(query string) []*schema.Message {
	history := []*schema.Message{schema.SystemMessage(SystemPrompt)}
	if a.cfg.IncludeHistory {
		history = append(history, a.state.Messages...)
	}
	user := schema.UserMessage(query)
	a.state.AddMessage(user)
	return append(history, user)
}

// dispatchAll 依次执行一轮里的工具调用并记录结果，返回与调用一一对应的 Tool 消息。
func (a *Agent) dispatchAll(ctx context.Context, round int, calls []schema.ToolCall) []*schema.Message {
	out := make([]*schema.Message, 0, len(calls))
	for _, call := range calls {
		log.Debugf("round %d: tool %s args=%s", round, call.Function.Name, call.Function.Arguments)
		result := a.dispatcher.Dispatch(ctx, call.Function.Name, call.Function.Arguments)
		a.state.RecordToolResult(call.Function.Name, result)
		out = append(out, toolResultMessage(call, result))
	}
	return out
}

func (a *Agent) giveUp(narration string) Answer {
	content := fmt.Sprintf("I was unable to finish answering within %d tool rounds.", a.cfg.MaxRounds)
	log.Warnf("agent gave up after %d tool rounds", a.cfg.MaxRounds)
	a.state.AddMessage(schema.AssistantMessage(content, nil))
	return Answer{Content: narration + content, Rounds: a.cfg.MaxRounds, GaveUp: true}
}
