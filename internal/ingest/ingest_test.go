package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/DocAgent/internal/docindex"
	"github.com/wwwzy/DocAgent/internal/storage"
)

func openTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	s, err := storage.Open(context.Background(), storage.Config{
		Path:      filepath.Join(t.TempDir(), "docagent-ingest.db"),
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 "+name), 0o644))
	}
}

// textProcessor 把文件内容当作抽取结果，绕过真实 PDF 解析。
func textProcessor(p *Pipeline) ProcessFunc {
	return func(ctx context.Context, path string) (storage.Document, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return storage.Document{}, err
		}
		if strings.Contains(path, "broken") {
			return storage.Document{}, errors.New("cannot parse")
		}
		mod := time.Now().UTC()
		return p.buildDocument(path, filepath.Base(path), string(data), map[string]string{"Author": "test"}, &mod)
	}
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, ChunkText("", 10, 2))
	assert.Equal(t, []string{"abc"}, ChunkText("abc", 10, 2))
	assert.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, ChunkText("abcdefghij", 4, 2))
	assert.Equal(t, []string{"日本語", "語テキ", "キスト"}, ChunkText("日本語テキスト", 3, 1))
	assert.Equal(t, []string{"abc", "def"}, ChunkText("abcdef", 3, 5), "overlap >= size falls back to no overlap")
	assert.Equal(t, []string{"ab"}, ChunkText("ab   ", 2, 0), "whitespace-only chunks are dropped")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf", "sub/b.PDF", "sub/deeper/c.pdf", "notes.txt")

	files, err := Discover([]string{dir})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, strings.HasSuffix(files[0], "a.pdf"))

	files, err = Discover([]string{filepath.Join(dir, "sub", "**", "*.pdf"), filepath.Join(dir, "a.pdf")})
	require.NoError(t, err)
	assert.Len(t, files, 2, "glob matching is case sensitive, the explicit file is added")

	files, err = Discover([]string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "a.pdf")})
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = Discover([]string{filepath.Join(dir, "*.docx")})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestBuildDocument(t *testing.T) {
	store := openTestStorage(t)
	p, err := NewPipeline(store, Config{
		ChunkSize:    5,
		ChunkOverlap: 1,
		Tags:         []docindex.Tag{{Key: "team", Value: "finance"}},
		DocumentSets: []string{"reports", " "},
	})
	require.NoError(t, err)

	doc, err := p.buildDocument("/tmp/q3.pdf", "Q3", "hello world", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/q3.pdf", doc.Link)
	assert.Equal(t, DocumentID("file:///tmp/q3.pdf"), doc.ID)
	assert.Equal(t, "file", doc.SourceType)
	assert.Len(t, doc.Chunks, 3)
	assert.Equal(t, []storage.DocumentTag{{TagKey: "team", TagValue: "finance"}}, doc.Tags)
	require.Len(t, doc.Sets, 1)
	assert.Equal(t, "reports", doc.Sets[0].SetName)

	_, err = p.buildDocument("/tmp/empty.pdf", "", "   ", nil, nil)
	assert.Error(t, err)
}

func TestPipelineRunWritesDocuments(t *testing.T) {
	store := openTestStorage(t)
	dir := t.TempDir()
	writeFiles(t, dir, "one.pdf", "two.pdf", "broken.pdf")

	var mu sync.Mutex
	var errs []error
	p, err := NewPipeline(store, Config{
		Workers:   2,
		BatchSize: 1,
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	p.WithProcessor(textProcessor(p))

	ctx := context.Background()
	stats, err := p.Run(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Discovered)
	assert.Equal(t, int64(2), stats.Indexed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Chunks)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken.pdf")

	n, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	doc, err := store.GetDocument(ctx, DocumentID(FileLink(filepath.Join(dir, "one.pdf"))))
	require.NoError(t, err)
	assert.Equal(t, "one.pdf", doc.SemanticIdentifier)
	assert.Equal(t, 1, doc.ChunkCount)

	// 未修改的文件在同一个 Pipeline 上再次运行时被跳过。
	stats, err = p.Run(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Skipped)
}

func TestPipelineRunNoFiles(t *testing.T) {
	p, err := NewPipeline(openTestStorage(t), Config{})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), []string{filepath.Join(t.TempDir(), "*.pdf")})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestRetentionRunOnce(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertAuditRecord(ctx, &storage.AuditRecord{
			Action:    "search",
			Status:    storage.AuditStatusSuccess,
			CreatedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}))
	}

	c, err := NewRetentionCollector(store, RetentionConfig{KeepDays: 3, KeepLatest: 2})
	require.NoError(t, err)

	deleted, err := c.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	n, err := store.CountAuditRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestManagerRunsPipelineToCompletion(t *testing.T) {
	store := openTestStorage(t)
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf")

	p, err := NewPipeline(store, Config{})
	require.NoError(t, err)
	p.WithProcessor(textProcessor(p))
	r, err := NewRetentionCollector(store, RetentionConfig{KeepDays: 1})
	require.NoError(t, err)

	m := NewManager().WithPipeline(p, []string{dir}).WithRetention(r)
	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "second start is rejected")
	require.NoError(t, m.Wait())
	assert.Equal(t, int64(1), p.Stats().Indexed)

	assert.Error(t, NewManager().Start(context.Background()))
}
