package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const (
	NodeChatModel = "chat_model_node"
	NodeTools     = "tools_node"
	NodeAnswer    = "answer_node"
)

// turn 为一次提问在图中的局部状态。
type turn struct {
	history []*schema.Message
	// narration 为工具轮里模型顺带输出的正文，流式输出也会带上这些文字。
	narration strings.Builder
	rounds    int
}

type turnKey struct{}

func withTurn(ctx context.Context, t *turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

// buildGraph 构建 ChatModel -> (Tools -> ChatModel)* -> Answer 的循环图。
// 每个工具轮占两步（模型 + 工具），所以 MaxRounds 轮对应 2*MaxRounds 步，超出时返回 compose.ErrExceedMaxSteps。
func (a *Agent) buildGraph(ctx context.Context) (compose.Runnable[[]*schema.Message, Answer], error) {
	g := compose.NewGraph[[]*schema.Message, Answer](compose.WithGenLocalState(func(ctx context.Context) *turn {
		if t, ok := ctx.Value(turnKey{}).(*turn); ok {
			return t
		}
		return &turn{}
	}))

	// ChatModelNode: 把新消息并入历史后整体交给模型
	err := g.AddChatModelNode(NodeChatModel, a.chatModel, compose.WithStatePreHandler(
		func(_ context.Context, in []*schema.Message, t *turn) ([]*schema.Message, error) {
			t.history = append(t.history, in...)
			return t.history, nil
		}))
	if err != nil {
		return nil, err
	}

	// ToolsNode: 按顺序执行本轮全部工具调用，输出 Tool 消息回到模型
	err = g.AddLambdaNode(NodeTools, compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) ([]*schema.Message, error) {
		resp = sanitizeToolCalls(resp)
		var round int
		err := compose.ProcessState(ctx, func(_ context.Context, t *turn) error {
			t.history = append(t.history, resp)
			t.narration.WriteString(resp.Content)
			t.rounds++
			round = t.rounds
			return nil
		})
		if err != nil {
			return nil, err
		}
		return a.dispatchAll(ctx, round, resp.ToolCalls), nil
	}))
	if err != nil {
		return nil, err
	}

	err = g.AddLambdaNode(NodeAnswer, compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (Answer, error) {
		var ans Answer
		err := compose.ProcessState(ctx, func(_ context.Context, t *turn) error {
			ans = Answer{Content: t.narration.String() + resp.Content, Rounds: t.rounds}
			return nil
		})
		if err != nil {
			return Answer{}, err
		}
		a.state.AddMessage(resp)
		return ans, nil
	}))
	if err != nil {
		return nil, err
	}

	if err := g.AddEdge(compose.START, NodeChatModel); err != nil {
		return nil, err
	}

	// ChatModel -> Tools OR Answer
	err = g.AddBranch(NodeChatModel, compose.NewGraphBranch(func(_ context.Context, resp *schema.Message) (string, error) {
		if resp == nil {
			return "", errors.New("chat model returned no message")
		}
		if len(resp.ToolCalls) > 0 {
			return NodeTools, nil
		}
		return NodeAnswer, nil
	}, map[string]bool{
		NodeTools:  true,
		NodeAnswer: true,
	}))
	if err != nil {
		return nil, err
	}

	// Tools -> ChatModel (Loop back)
	if err := g.AddEdge(NodeTools, NodeChatModel); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeAnswer, compose.END); err != nil {
		return nil, err
	}

	return g.Compile(ctx,
		compose.WithGraphName("doc_agent"),
		compose.WithMaxRunSteps(2*a.cfg.MaxRounds),
	)
}
