package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/wwwzy/DocAgent/internal/agent"
)

// NewTraceContext 为一次提问生成 TraceID，工具调用的审计记录据此串联。
func NewTraceContext(ctx context.Context) (context.Context, string) {
	traceID := uuid.New().String()
	return agent.WithTraceID(ctx, traceID), traceID
}

// Respond 执行一次提问并把回答写入 w。流式模式下每收到一段就立即写出。
func Respond(ctx context.Context, backend ChatBackend, query string, stream bool, w io.Writer) (agent.Answer, error) {
	if !stream {
		ans, err := backend.Run(ctx, query)
		if err != nil {
			return ans, err
		}
		_, err = io.WriteString(w, ans.Content)
		return ans, err
	}

	sr, err := backend.Stream(ctx, query)
	if err != nil {
		return agent.Answer{}, err
	}
	defer sr.Close()

	var b strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return agent.Answer{Content: b.String()}, fmt.Errorf("stream: %w", err)
		}
		b.WriteString(chunk)
		if _, err := io.WriteString(w, chunk); err != nil {
			return agent.Answer{Content: b.String()}, err
		}
	}
	return agent.Answer{Content: b.String()}, nil
}
