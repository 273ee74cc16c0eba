package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/DocAgent/internal/docindex"
	"github.com/wwwzy/DocAgent/internal/ingest"
)

var (
	ingestTags     []string
	ingestSets     []string
	ingestWorkers  int
	ingestWatch    time.Duration
	ingestPassword string
)

// ingestCmd 抽取 PDF 文本并写入索引
var ingestCmd = &cobra.Command{
	Use:   "ingest <path|glob>...",
	Short: "抽取 PDF 并写入文档索引",
	Long: `扫描给定的文件、目录或 glob（支持 **），对每个 PDF 做原生文本抽取和 OCR，
切分后写入文档索引。指定 --watch 时会按间隔重新扫描，只处理有修改的文件。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		fmt.Println("正在初始化存储...")
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		engine, err := newOCR()
		if err != nil {
			return err
		}
		if engine != nil {
			defer engine.Close()
		}

		icfg := cfg.Ingest
		if ingestWorkers > 0 {
			icfg.Workers = ingestWorkers
		}
		if ingestWatch > 0 {
			icfg.WatchInterval = ingestWatch
		}
		for _, raw := range ingestTags {
			icfg.Tags = append(icfg.Tags, docindex.ParseTag(raw))
		}
		icfg.DocumentSets = append(icfg.DocumentSets, ingestSets...)

		pipeline, err := ingest.NewPipeline(store, icfg, readerOptions(engine, ingestPassword)...)
		if err != nil {
			return fmt.Errorf("创建入库流水线失败: %w", err)
		}

		mgr := ingest.NewManager().WithPipeline(pipeline, args)
		if cfg.Retention.Enabled {
			ret, err := ingest.NewRetentionCollector(store, cfg.Retention)
			if err != nil {
				return fmt.Errorf("创建 retention 任务失败: %w", err)
			}
			mgr.WithRetention(ret)
		}

		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动入库失败: %w", err)
		}
		if icfg.WatchInterval > 0 {
			fmt.Println("正在监听文件变化。按 Ctrl+C 停止。")
		}

		waitErr := mgr.Wait()
		stats := pipeline.Stats()
		fmt.Printf("Indexed %d documents (%d chunks), skipped %d unchanged, %d failed.\n",
			stats.Indexed, stats.Chunks, stats.Skipped, stats.Failed)
		if waitErr != nil {
			return fmt.Errorf("入库失败: %w", waitErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringArrayVar(&ingestTags, "tag", nil, "附加到文档的标签，形如 key=value（可重复）")
	ingestCmd.Flags().StringArrayVar(&ingestSets, "set", nil, "文档所属的文档集合（可重复）")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "并发处理的 worker 数量（默认取配置）")
	ingestCmd.Flags().DurationVar(&ingestWatch, "watch", 0, "按该间隔重新扫描路径，例如 30s")
	ingestCmd.Flags().StringVar(&ingestPassword, "password", "", "加密 PDF 的密码（覆盖 pdf.password）")
}
