package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/DocAgent/internal/ingest"
	"github.com/wwwzy/DocAgent/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、列出已入库文档、查看与清理审计记录的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	Run:   runInfo,
}

// pruneAuditCmd represents the prune-audit command
var pruneAuditCmd = &cobra.Command{
	Use:   "prune-audit",
	Short: "清理审计记录",
	Long: `根据用户指定的保留条数或天数，清理旧的审计记录。
两者都未指定时，按配置文件中的 retention 策略执行一次。`,
	Run: runPruneAudit,
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "列出已入库的文档",
	Run:   runDocs,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "查看工具调用审计记录",
	Run:   runAudit,
}

var (
	keepAuditCount int
	keepAuditDays  int

	docsLimit      int
	docsSourceType string

	auditTraceID string
	auditAction  string
	auditStatus  string
	auditLimit   int
)

func init() {
	pruneAuditCmd.Flags().IntVar(&keepAuditCount, "keep", 0, "保留最近的 N 条记录")
	pruneAuditCmd.Flags().IntVar(&keepAuditDays, "days", 0, "保留最近 N 天的记录")

	docsCmd.Flags().IntVar(&docsLimit, "limit", 20, "最多列出的文档数")
	docsCmd.Flags().StringVar(&docsSourceType, "source-type", "", "只列出指定来源类型的文档")

	auditCmd.Flags().StringVar(&auditTraceID, "trace", "", "按 TraceID 过滤")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "按工具名过滤")
	auditCmd.Flags().StringVar(&auditStatus, "status", "", "按状态过滤: running/success/failed")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "最多显示的记录数")

	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd, pruneAuditCmd, docsCmd, auditCmd)
}

func mustOpenStore(ctx context.Context) *storage.Storage {
	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runPruneAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	fmt.Println("Opening database...")
	store := mustOpenStore(ctx)
	defer store.Close()

	policy := cfg.Retention
	if keepAuditCount > 0 || keepAuditDays > 0 {
		policy.KeepLatest = keepAuditCount
		policy.KeepDays = keepAuditDays
	}
	if policy.KeepLatest <= 0 && policy.KeepDays <= 0 {
		fmt.Println("Error: must specify either --keep or --days")
		_ = cmd.Usage()
		os.Exit(1)
	}

	if policy.KeepDays > 0 {
		fmt.Printf("Pruning audit records older than %d days...\n", policy.KeepDays)
	}
	if policy.KeepLatest > 0 {
		fmt.Printf("Pruning audit records, keeping latest %d records...\n", policy.KeepLatest)
	}

	ret, err := ingest.NewRetentionCollector(store, policy)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	deleted, err := ret.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		fmt.Printf("Prune failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Prune completed. Deleted %d records.\n", deleted)
	if count, err := store.CountAuditRecords(ctx); err == nil {
		fmt.Printf("Remaining Audit Records: %d\n", count)
	}
}

func runInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		sizeMB := float64(info.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Database File: %s\n", dbSizeStr)
		fmt.Printf("Error opening database: %v\n", err)
		return
	}
	defer store.Close()

	docCount, err := store.CountDocuments(ctx)
	if err != nil {
		fmt.Printf("Error counting documents: %v\n", err)
	}
	chunkCount, err := store.CountChunks(ctx)
	if err != nil {
		fmt.Printf("Error counting chunks: %v\n", err)
	}
	auditCount, err := store.CountAuditRecords(ctx)
	if err != nil {
		fmt.Printf("Error counting audit records: %v\n", err)
	}

	fmt.Printf("Database File: %s\n\n", dbSizeStr)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Documents\t%d\n", docCount)
	fmt.Fprintf(w, "Chunks\t%d\n", chunkCount)
	fmt.Fprintf(w, "AuditRecords\t%d\n", auditCount)
	w.Flush()
}

func runDocs(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := mustOpenStore(ctx)
	defer store.Close()

	docs, err := store.ListDocuments(ctx, storage.DocumentQuery{SourceType: docsSourceType, Limit: docsLimit, Desc: true})
	if err != nil {
		fmt.Printf("Error listing documents: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Println("No documents indexed yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTitle\tChunks\tUpdated\tLink")
	fmt.Fprintln(w, "--\t-----\t------\t-------\t----")
	for _, d := range docs {
		updated := "-"
		if d.DocUpdatedAt != nil {
			updated = d.DocUpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.SemanticIdentifier, d.ChunkCount, updated, d.Link)
	}
	w.Flush()
}

func runAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := mustOpenStore(ctx)
	defer store.Close()

	records, err := store.QueryAuditRecords(ctx, storage.AuditQuery{
		TraceID: auditTraceID,
		Action:  auditAction,
		Status:  auditStatus,
		Limit:   auditLimit,
		Desc:    true,
	})
	if err != nil {
		fmt.Printf("Error querying audit records: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Time\tTrace\tAction\tStatus\tDuration\tError")
	fmt.Fprintln(w, "----\t-----\t------\t------\t--------\t-----")
	for _, r := range records {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.TraceID, r.Action, r.Status, dur, r.ErrorMessage)
	}
	w.Flush()
}
