package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
)

var errStreamClosed = errors.New("stream closed by reader")

// Stream 以流式方式处理一次提问，返回的 reader 逐段给出回答正文。
//
// 每轮模型输出的正文片段都会立即转发，拼起来与 Run 的 Answer.Content 相同；
// 调用方 Close reader 或取消 ctx 都会结束循环。
// 图的 Stream 只把 END 前最后一个节点的输出流交给调用方，工具轮里的正文会在图内被拼接消费，
// 所以流式路径单独驱动同样的轮次。
func (a *Agent) Stream(ctx context.Context, query string) (*schema.StreamReader[string], error) {
	history := a.begin(query)
	sr, sw := schema.Pipe[string](16)

	go func() {
		defer sw.Close()
		err := a.streamLoop(ctx, history, func(delta string) bool {
			return sw.Send(delta, nil)
		})
		if err != nil && !errors.Is(err, errStreamClosed) {
			sw.Send("", err)
		}
	}()
	return sr, nil
}

// streamLoop 与图中的循环一致：模型 -> 工具 -> 模型，直到无工具调用或达到 MaxRounds。
func (a *Agent) streamLoop(ctx context.Context, history []*schema.Message, emit func(string) bool) error {
	for round := 1; round <= a.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := a.streamRound(ctx, history, emit)
		if err != nil {
			return err
		}
		if len(resp.ToolCalls) == 0 {
			a.state.AddMessage(resp)
			return nil
		}
		resp = sanitizeToolCalls(resp)
		history = append(history, resp)
		history = append(history, a.dispatchAll(ctx, round, resp.ToolCalls)...)
	}

	ans := a.giveUp("")
	if emit(ans.Content) {
		return errStreamClosed
	}
	return nil
}

// streamRound 执行一轮流式生成，转发正文片段并拼接出完整回复以获取工具调用。
func (a *Agent) streamRound(ctx context.Context, history []*schema.Message, emit func(string) bool) (*schema.Message, error) {
	stream, err := a.chatModel.Stream(ctx, history)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("recv model stream: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)

		if chunk.Content != "" {
			if closed := emit(chunk.Content); closed {
				return nil, errStreamClosed
			}
		}
	}

	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	msg, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("concat model stream: %w", err)
	}
	return msg, nil
}
