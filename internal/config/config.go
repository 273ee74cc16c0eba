package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wwwzy/DocAgent/internal/agent"
	"github.com/wwwzy/DocAgent/internal/ingest"
	"github.com/wwwzy/DocAgent/internal/llm"
	"github.com/wwwzy/DocAgent/internal/ocr/tesseract"
	"github.com/wwwzy/DocAgent/internal/pdfreader"
	"github.com/wwwzy/DocAgent/internal/storage"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// PDFConfig 控制 PDF 文本抽取与 OCR。
type PDFConfig struct {
	OCREnabled  bool    `mapstructure:"ocr_enabled"`
	Renderer    string  `mapstructure:"renderer"`
	DPI         float64 `mapstructure:"dpi"`
	OCRLanguage string  `mapstructure:"ocr_language"`
	PageSegMode int     `mapstructure:"page_seg_mode"`
	Password    string  `mapstructure:"password"`
}

type Config struct {
	LogLevel  string                 `mapstructure:"log_level"`
	Storage   storage.Config         `mapstructure:"storage"`
	LLM       llm.Config             `mapstructure:"llm"`
	Agent     agent.Config           `mapstructure:"agent"`
	PDF       PDFConfig              `mapstructure:"pdf"`
	Ingest    ingest.Config          `mapstructure:"ingest"`
	Retention ingest.RetentionConfig `mapstructure:"retention"`
}

// Load 按 默认值 < 配置文件 < 环境变量 的优先级加载配置。
// 工作目录下的 .env 会先被加载，但不会覆盖已存在的环境变量。
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.docagent")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DOCAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只认识设置过默认值或显式绑定的 key，因此所有字段都要在这里登记。
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyProviderEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyProviderEnv 用提供方自己的环境变量（ARK_API_KEY、OPENAI_API_KEY 等）补齐未配置的 llm 字段。
func (c *Config) applyProviderEnv() {
	prefix := "ARK"
	if strings.EqualFold(c.LLM.Provider, llm.ProviderOpenAI) {
		prefix = "OPENAI"
	}
	fill := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, name := range names {
			if val := os.Getenv(name); val != "" {
				*dst = val
				return
			}
		}
	}
	fill(&c.LLM.APIKey, prefix+"_API_KEY")
	fill(&c.LLM.ModelID, prefix+"_MODEL_ID", prefix+"_MODEL")
	fill(&c.LLM.BaseURL, prefix+"_BASE_URL")

	if c.LLM.BaseURL == "" && !strings.EqualFold(c.LLM.Provider, llm.ProviderOpenAI) {
		c.LLM.BaseURL = defaultArkBaseURL
	}
}

// Validate 检查与凭据无关的配置项；模型凭据由 ValidateLLM 单独检查。
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderArk, llm.ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider must be one of ark, openai (got %q)", c.LLM.Provider)
	}
	switch c.PDF.Renderer {
	case pdfreader.RendererFitz, pdfreader.RendererEmbedded:
	default:
		return fmt.Errorf("pdf.renderer must be one of fitz, embedded (got %q)", c.PDF.Renderer)
	}
	if c.PDF.DPI <= 0 {
		return errors.New("pdf.dpi must be positive")
	}
	if c.PDF.PageSegMode < 0 || c.PDF.PageSegMode > 13 {
		return fmt.Errorf("pdf.page_seg_mode must be within 0..13 (got %d)", c.PDF.PageSegMode)
	}
	if c.Agent.MaxRounds <= 0 {
		return errors.New("agent.max_rounds must be positive")
	}
	if c.Ingest.ChunkSize <= 0 {
		return errors.New("ingest.chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return errors.New("ingest.chunk_overlap must be within [0, chunk_size)")
	}
	return nil
}

// ValidateLLM 检查对话类命令所需的模型凭据。
func (c *Config) ValidateLLM() error {
	prefix := "ARK"
	if strings.EqualFold(c.LLM.Provider, llm.ProviderOpenAI) {
		prefix = "OPENAI"
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set %s_API_KEY env var)", prefix)
	}
	if c.LLM.ModelID == "" {
		return fmt.Errorf("llm.model_id is required (or set %s_MODEL_ID env var)", prefix)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// -------------------------------------------------------------------------
	// Global / Storage
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.in_memory", d.Storage.InMemory)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)

	// -------------------------------------------------------------------------
	// LLM / Agent
	// -------------------------------------------------------------------------
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model_id", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", d.LLM.Temperature)

	v.SetDefault("agent.max_rounds", d.Agent.MaxRounds)
	v.SetDefault("agent.include_history", d.Agent.IncludeHistory)
	v.SetDefault("agent.audit", d.Agent.Audit)

	// -------------------------------------------------------------------------
	// PDF / OCR
	// -------------------------------------------------------------------------
	v.SetDefault("pdf.ocr_enabled", d.PDF.OCREnabled)
	v.SetDefault("pdf.renderer", d.PDF.Renderer)
	v.SetDefault("pdf.dpi", d.PDF.DPI)
	v.SetDefault("pdf.ocr_language", d.PDF.OCRLanguage)
	v.SetDefault("pdf.page_seg_mode", d.PDF.PageSegMode)
	v.SetDefault("pdf.password", "")

	// -------------------------------------------------------------------------
	// Ingest / Retention
	// -------------------------------------------------------------------------
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.queue_size", d.Ingest.QueueSize)
	v.SetDefault("ingest.batch_size", d.Ingest.BatchSize)
	v.SetDefault("ingest.flush_interval", d.Ingest.FlushInterval)
	v.SetDefault("ingest.chunk_size", d.Ingest.ChunkSize)
	v.SetDefault("ingest.chunk_overlap", d.Ingest.ChunkOverlap)
	v.SetDefault("ingest.source_type", d.Ingest.SourceType)
	v.SetDefault("ingest.watch_interval", d.Ingest.WatchInterval)
	v.SetDefault("ingest.document_sets", []string{})

	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.keep_days", d.Retention.KeepDays)
	v.SetDefault("retention.keep_latest", d.Retention.KeepLatest)
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: storage.Config{
			Path:        "docagent.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		LLM: llm.Config{
			Provider: llm.ProviderArk,
		},
		Agent: agent.Config{
			MaxRounds: agent.DefaultMaxRounds,
			Audit:     true,
		},
		PDF: PDFConfig{
			OCREnabled:  true,
			Renderer:    pdfreader.RendererFitz,
			DPI:         pdfreader.DefaultDPI,
			OCRLanguage: tesseract.DefaultLanguage,
			PageSegMode: tesseract.DefaultPageSegMode,
		},
		Ingest:    ingest.DefaultConfig(),
		Retention: ingest.DefaultRetentionConfig(),
	}
}
