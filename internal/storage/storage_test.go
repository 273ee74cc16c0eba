package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "docagent.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func sampleDocuments(base time.Time) []Document {
	older := base.Add(-72 * time.Hour)
	return []Document{
		{
			ID:                 "doc-a",
			SemanticIdentifier: "Quarterly Report",
			SourceType:         "file",
			Link:               "file:///tmp/report.pdf",
			Metadata:           map[string]string{"Author": "Finance"},
			DocUpdatedAt:       &base,
			Chunks: []Chunk{
				{ChunkIndex: 0, Content: "Revenue grew in the third quarter."},
				{ChunkIndex: 1, Content: "Operating costs were flat."},
				{ChunkIndex: 2, Content: "Outlook remains positive."},
			},
			Tags: []DocumentTag{{TagKey: "team", TagValue: "finance"}},
			Sets: []DocumentSetMember{{SetName: "reports"}},
		},
		{
			ID:                 "doc-b",
			SemanticIdentifier: "Onboarding Guide",
			SourceType:         "web",
			DocUpdatedAt:       &older,
			Chunks: []Chunk{
				{ChunkIndex: 0, Content: "Welcome to the team. Revenue is not covered here."},
			},
			Tags: []DocumentTag{{TagValue: "hr"}},
		},
	}
}

func TestDocumentsRoundtrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertDocuments(ctx, sampleDocuments(base)))

	doc, err := s.GetDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", doc.SemanticIdentifier)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, "Finance", doc.Metadata["Author"])
	require.Len(t, doc.Tags, 1)
	assert.Equal(t, "finance", doc.Tags[0].TagValue)
	require.Len(t, doc.Sets, 1)
	assert.Equal(t, "reports", doc.Sets[0].SetName)

	_, err = s.GetDocument(ctx, "missing")
	assert.True(t, IsNotFound(err))

	docs, err := s.GetDocuments(ctx, []string{"doc-a", "doc-b", "missing"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestUpsertReplacesChildren(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.UpsertDocuments(ctx, sampleDocuments(base)))

	replacement := Document{
		ID:                 "doc-a",
		SemanticIdentifier: "Quarterly Report v2",
		Chunks:             []Chunk{{ChunkIndex: 0, Content: "Only one chunk now."}},
	}
	require.NoError(t, s.UpsertDocuments(ctx, []Document{replacement}))

	chunks, err := s.QueryChunkRange(ctx, ChunkRange{DocumentID: "doc-a"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Only one chunk now.", chunks[0].Content)

	doc, err := s.GetDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report v2", doc.SemanticIdentifier)
	assert.Equal(t, "file", doc.SourceType)
	assert.Empty(t, doc.Tags)

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestQueryChunkRange(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocuments(ctx, sampleDocuments(time.Now().UTC())))

	got, err := s.QueryChunkRange(ctx, ChunkRange{DocumentID: "doc-a", MinChunkIndex: intPtr(1), MaxChunkIndex: intPtr(1)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Operating costs were flat.", got[0].Content)

	got, err = s.QueryChunkRange(ctx, ChunkRange{DocumentID: "doc-a", MinChunkIndex: intPtr(1)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ChunkIndex)
	assert.Equal(t, 2, got[1].ChunkIndex)

	got, err = s.QueryChunkRange(ctx, ChunkRange{DocumentID: "doc-a", MinChunkIndex: intPtr(9), MaxChunkIndex: intPtr(9)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchChunksFilters(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC()
	require.NoError(t, s.UpsertDocuments(ctx, sampleDocuments(base)))

	got, err := s.SearchChunks(ctx, ChunkSearch{Terms: []string{"revenue"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.SearchChunks(ctx, ChunkSearch{Terms: []string{"revenue"}, SourceTypes: []string{"web"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-b", got[0].DocumentID)

	cutoff := base.Add(-time.Hour)
	got, err = s.SearchChunks(ctx, ChunkSearch{Terms: []string{"revenue"}, TimeCutoff: &cutoff})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-a", got[0].DocumentID)

	got, err = s.SearchChunks(ctx, ChunkSearch{DocumentSets: []string{"reports"}})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.SearchChunks(ctx, ChunkSearch{Tags: []TagFilter{{Value: "hr"}}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-b", got[0].DocumentID)

	got, err = s.SearchChunks(ctx, ChunkSearch{Tags: []TagFilter{{Key: "team", Value: "finance"}, {Value: "hr"}}})
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = s.SearchChunks(ctx, ChunkSearch{Terms: []string{"onboarding"}})
	require.NoError(t, err)
	require.Len(t, got, 1, "title matches count as hits")
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocuments(ctx, sampleDocuments(time.Now().UTC())))

	require.NoError(t, s.DeleteDocument(ctx, "doc-a"))
	assert.True(t, IsNotFound(s.DeleteDocument(ctx, "doc-a")))

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDocumentSchemaCascades(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.checkDocumentSchema(ctx))

	// 手工建出的无约束子表会被拒绝
	require.NoError(t, s.DB().Exec("DROP TABLE document_set_members").Error)
	require.NoError(t, s.DB().Exec("CREATE TABLE document_set_members (id integer PRIMARY KEY, document_id text NOT NULL, set_name text NOT NULL)").Error)
	assert.ErrorContains(t, s.checkDocumentSchema(ctx), "document_set_members")
}

func TestHasDocumentCascade(t *testing.T) {
	assert.True(t, hasDocumentCascade([]foreignKey{{Table: "documents", From: "document_id", To: "id", OnDelete: "CASCADE"}}))
	assert.False(t, hasDocumentCascade([]foreignKey{{Table: "documents", From: "document_id", To: "id", OnDelete: "NO ACTION"}}))
	assert.False(t, hasDocumentCascade(nil))
}

func TestAuditRecordLifecycle(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := &AuditRecord{
		TraceID:    "trace-1",
		Action:     "search",
		ParamsJSON: `{"query":"revenue"}`,
		Status:     AuditStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.InsertAuditRecord(ctx, rec))
	require.NotZero(t, rec.ID)

	status := AuditStatusSuccess
	result := `[]`
	finished := time.Now().UTC()
	require.NoError(t, s.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:     &status,
		ResultJSON: &result,
		FinishedAt: &finished,
	}))

	got, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, AuditStatusSuccess, got[0].Status)
	assert.Equal(t, `[]`, got[0].ResultJSON)

	err = s.UpdateAuditRecord(ctx, 9999, AuditUpdate{Status: &status})
	assert.True(t, IsNotFound(err))
}

func TestPruneAuditRecords(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertAuditRecord(ctx, &AuditRecord{Action: "search", Status: AuditStatusSuccess, CreatedAt: old}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertAuditRecord(ctx, &AuditRecord{Action: "get_document", Status: AuditStatusSuccess}))
	}

	deleted, err := s.DeleteAuditRecordsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	deleted, err = s.DeleteAuditRecordsKeepLatest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	left, err := s.QueryAuditRecords(ctx, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, left, 1)

	deleted, err = s.DeleteAuditRecordsKeepLatest(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNilStorageGuards(t *testing.T) {
	var s *Storage
	ctx := context.Background()

	assert.NoError(t, s.Close())
	assert.Error(t, s.Ping(ctx))
	_, err := s.SearchChunks(ctx, ChunkSearch{})
	assert.Error(t, err)
	assert.Error(t, s.UpsertDocuments(ctx, []Document{{ID: "x"}}))
}
