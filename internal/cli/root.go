package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/wwwzy/DocAgent/internal/config"
	"github.com/wwwzy/DocAgent/internal/log"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "docagent",
	Short: "DocAgent 是一个基于 PDF 文档库的 AI 问答助手",
	Long: `DocAgent 把 PDF（原生文本 + OCR）抽取入库，
并通过可调用检索工具的 AI Agent 回答关于这些文档的问题。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并适当设置标志。由 main.main() 调用。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.docagent/config.yaml 搜索）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别: debug/info/warn/error（覆盖配置文件）")
}

// initConfig 读取配置文件和环境变量，并应用日志级别。
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.SetLevel(cfg.LogLevel)

	if cfg.LogLevel != log.LevelDebug {
		cfg.Storage.Logger = logger.Default.LogMode(logger.Silent)
	}
}
