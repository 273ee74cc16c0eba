// Package llm 根据配置构造支持工具调用的 eino ChatModel。
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
)

const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Config 为模型提供方配置；BaseURL 为空时使用各提供方默认地址。
type Config struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	ModelID     string  `mapstructure:"model_id"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
}

// New 按 Provider 创建 ChatModel。
func New(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderArk, "":
		return NewArkChatModel(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIChatModel(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: ark, openai)", cfg.Provider)
	}
}
