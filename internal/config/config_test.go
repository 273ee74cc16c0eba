package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/DocAgent/internal/ingest"
	"github.com/wwwzy/DocAgent/internal/storage"
)

// clearLLMEnv 确保宿主机上的凭据不会干扰测试。
func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"ARK_API_KEY", "ARK_MODEL_ID", "ARK_BASE_URL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_MODEL_ID", "OPENAI_BASE_URL",
	} {
		t.Setenv(name, "")
	}
	// .env 从工作目录读取，切到空目录避免读到仓库里的文件。
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearLLMEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "docagent.db", cfg.Storage.Path)
	assert.Equal(t, "ark", cfg.LLM.Provider)
	assert.Equal(t, defaultArkBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
	assert.True(t, cfg.Agent.Audit)
	assert.Equal(t, "fitz", cfg.PDF.Renderer)
	assert.Equal(t, 300.0, cfg.PDF.DPI)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.False(t, cfg.Retention.Enabled)

	assert.Error(t, cfg.ValidateLLM(), "credentials are only required by chat commands")
}

func TestLoad_ConfigFile(t *testing.T) {
	clearLLMEnv(t)

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
log_level: "debug"
llm:
  provider: openai
  api_key: "file-key"
  model_id: "gpt-test"
storage:
  path: "test.db"
  busy_timeout: "10s"
pdf:
  renderer: embedded
  ocr_enabled: false
ingest:
  workers: 3
  flush_interval: "500ms"
  document_sets: [reports]
retention:
  enabled: true
  keep_days: 7
`)
	require.NoError(t, os.WriteFile(configFile, content, 0o644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.BaseURL, "openai keeps the client default base url")
	assert.NoError(t, cfg.ValidateLLM())
	assert.Equal(t, "embedded", cfg.PDF.Renderer)
	assert.False(t, cfg.PDF.OCREnabled)
	assert.Equal(t, 3, cfg.Ingest.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.FlushInterval)
	assert.Equal(t, []string{"reports"}, cfg.Ingest.DocumentSets)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 7, cfg.Retention.KeepDays)

	// 未覆盖的字段保持默认值
	assert.Equal(t, ingest.DefaultConfig().QueueSize, cfg.Ingest.QueueSize)
	assert.Equal(t, ingest.DefaultRetentionConfig().KeepLatest, cfg.Retention.KeepLatest)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("DOCAGENT_LOG_LEVEL", "warn")
	t.Setenv("DOCAGENT_STORAGE_PATH", "env.db")
	t.Setenv("DOCAGENT_AGENT_MAX_ROUNDS", "4")
	t.Setenv("DOCAGENT_INGEST_FLUSH_INTERVAL", "5s")
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("ARK_MODEL_ID", "ark-model")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 4, cfg.Agent.MaxRounds)
	assert.Equal(t, 5*time.Second, cfg.Ingest.FlushInterval)
	assert.Equal(t, "ark-key", cfg.LLM.APIKey)
	assert.Equal(t, "ark-model", cfg.LLM.ModelID)
	assert.NoError(t, cfg.ValidateLLM())
}

func TestLoad_OpenAIEnv(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("DOCAGENT_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8000/v1")
	t.Setenv("ARK_API_KEY", "ignored")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ModelID)
	assert.Equal(t, "http://localhost:8000/v1", cfg.LLM.BaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	clearLLMEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("ARK_API_KEY=from-dotenv\nARK_MODEL_ID=dotenv-model\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("ARK_API_KEY")
		_ = os.Unsetenv("ARK_MODEL_ID")
	})
	// t.Setenv 设置的空值也算“已存在”，godotenv 不会覆盖，所以这里先移除。
	require.NoError(t, os.Unsetenv("ARK_API_KEY"))
	require.NoError(t, os.Unsetenv("ARK_MODEL_ID"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, "dotenv-model", cfg.LLM.ModelID)
}

func TestLoad_Validate(t *testing.T) {
	clearLLMEnv(t)

	t.Setenv("DOCAGENT_PDF_RENDERER", "ghostscript")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf.renderer")

	t.Setenv("DOCAGENT_PDF_RENDERER", "fitz")
	t.Setenv("DOCAGENT_LLM_PROVIDER", "bogus")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, storage.Config{Path: "docagent.db", EnableWAL: true, BusyTimeout: 5 * time.Second}, cfg.Storage)
	assert.NoError(t, cfg.Validate())
}
