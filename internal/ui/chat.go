// Package ui 定义对话界面与 Agent 之间的接口，并提供控制台实现。
package ui

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/DocAgent/internal/agent"
)

// ChatBackend 为界面所需的 Agent 能力；*agent.Agent 直接满足该接口。
type ChatBackend interface {
	Run(ctx context.Context, query string) (agent.Answer, error)
	Stream(ctx context.Context, query string) (*schema.StreamReader[string], error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// Stream 为 true 时边生成边输出。
	Stream bool
}

var _ ChatBackend = (*agent.Agent)(nil)
