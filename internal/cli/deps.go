package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wwwzy/DocAgent/internal/agent"
	"github.com/wwwzy/DocAgent/internal/docindex"
	"github.com/wwwzy/DocAgent/internal/llm"
	"github.com/wwwzy/DocAgent/internal/ocr"
	"github.com/wwwzy/DocAgent/internal/ocr/tesseract"
	"github.com/wwwzy/DocAgent/internal/pdfreader"
	"github.com/wwwzy/DocAgent/internal/storage"
)

func openStore(ctx context.Context) (*storage.Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	return store, nil
}

// buildAgent 组装模型、索引与存储，返回可直接提问的 Agent。
func buildAgent(ctx context.Context, store *storage.Storage) (*agent.Agent, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	chatModel, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("创建模型失败: %w", err)
	}
	index, err := docindex.New(store)
	if err != nil {
		return nil, fmt.Errorf("创建索引失败: %w", err)
	}
	a, err := agent.New(agent.Deps{
		ChatModel: chatModel,
		Pipeline:  index,
		Index:     index,
		Store:     store,
	}, cfg.Agent)
	if err != nil {
		return nil, fmt.Errorf("创建 Agent 失败: %w", err)
	}
	return a, nil
}

// newOCR 在配置启用 OCR 时创建 Tesseract 引擎；未启用时返回 nil。
func newOCR() (ocr.Extractor, error) {
	if !cfg.PDF.OCREnabled {
		return nil, nil
	}
	engine, err := tesseract.New(
		tesseract.WithLanguage(cfg.PDF.OCRLanguage),
		tesseract.WithPageSegMode(cfg.PDF.PageSegMode),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化 OCR 失败（可用 pdf.ocr_enabled=false 关闭）: %w", err)
	}
	return engine, nil
}

func readerOptions(engine ocr.Extractor, password string) []pdfreader.Option {
	if password == "" {
		password = cfg.PDF.Password
	}
	opts := []pdfreader.Option{
		pdfreader.WithRenderer(cfg.PDF.Renderer),
		pdfreader.WithDPI(cfg.PDF.DPI),
	}
	if password != "" {
		opts = append(opts, pdfreader.WithPassword(password))
	}
	if engine != nil {
		opts = append(opts, pdfreader.WithOCR(engine))
	}
	return opts
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
