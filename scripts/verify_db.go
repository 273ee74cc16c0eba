package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/wwwzy/DocAgent/internal/storage"
)

// 直接用 gorm 打开数据库，检查文档与 chunk 的一致性。
func main() {
	dbPath := flag.String("db", "docagent.db", "path to the DocAgent database")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		fmt.Printf("failed to connect database: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- Verifying DocAgent Database ---")

	problems := 0

	if !db.Migrator().HasTable(&storage.Document{}) {
		fmt.Println("Table 'documents' does not exist yet.")
		return
	}

	var docCount, chunkCount int64
	db.Model(&storage.Document{}).Count(&docCount)
	db.Model(&storage.Chunk{}).Count(&chunkCount)
	fmt.Printf("Total Documents: %d\n", docCount)
	fmt.Printf("Total Chunks: %d\n", chunkCount)

	if docCount > 0 {
		var docs []storage.Document
		db.Order("updated_at desc").Limit(5).Find(&docs)
		fmt.Println("Latest 5 Documents (Local Time):")
		for _, d := range docs {
			title := d.SemanticIdentifier
			if r := []rune(title); len(r) > 50 {
				title = string(r[:47]) + "..."
			}
			fmt.Printf("  [%s] %s (%d chunks) %s\n",
				d.UpdatedAt.Local().Format("2006-01-02 15:04:05"), title, d.ChunkCount, d.Link)
		}
	}

	fmt.Println("\n------------------------------------")

	// chunk_count 与实际 chunk 数不一致的文档
	type mismatch struct {
		ID         string
		ChunkCount int
		Actual     int
	}
	var mismatches []mismatch
	db.Raw(`SELECT d.id, d.chunk_count, COUNT(c.id) AS actual
		FROM documents d LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id HAVING d.chunk_count <> COUNT(c.id)`).Scan(&mismatches)
	for _, m := range mismatches {
		fmt.Printf("  chunk count mismatch: %s recorded=%d actual=%d\n", m.ID, m.ChunkCount, m.Actual)
	}
	problems += len(mismatches)

	var orphans int64
	db.Raw(`SELECT COUNT(*) FROM chunks c LEFT JOIN documents d ON d.id = c.document_id WHERE d.id IS NULL`).Scan(&orphans)
	if orphans > 0 {
		fmt.Printf("  orphan chunks: %d\n", orphans)
		problems++
	}

	if db.Migrator().HasTable(&storage.AuditRecord{}) {
		var auditCount, running int64
		db.Model(&storage.AuditRecord{}).Count(&auditCount)
		db.Model(&storage.AuditRecord{}).Where("status = ?", storage.AuditStatusRunning).Count(&running)
		fmt.Printf("Total Audit Records: %d (%d still running)\n", auditCount, running)
	}

	if problems > 0 {
		fmt.Printf("\n%d problem(s) found.\n", problems)
		os.Exit(1)
	}
	fmt.Println("\nNo problems found.")
}
