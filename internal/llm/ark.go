package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
)

// NewArkChatModel 初始化火山方舟 ChatModel。
func NewArkChatModel(ctx context.Context, cfg Config) (*ark.ChatModel, error) {
	if cfg.APIKey == "" || cfg.ModelID == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}

	arkCfg := &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.ModelID,
		BaseURL: cfg.BaseURL,
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		arkCfg.Temperature = &t
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("new ark chat model: %w", err)
	}
	return chatModel, nil
}
