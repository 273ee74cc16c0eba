package docindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wwwzy/DocAgent/internal/storage"
)

const (
	defaultSearchLimit    = 10
	defaultCandidateLimit = 500
)

var (
	_ SearchPipeline = (*Index)(nil)
	_ DocumentIndex  = (*Index)(nil)
)

// Index 基于本地 SQLite 存储实现 SearchPipeline 与 DocumentIndex。
//
// 检索分两步：先用 LIKE 粗筛候选 chunk，再在内存中按检索类型打分，
// 每篇文档只保留得分最高的 chunk 作为 section 的中心。
type Index struct {
	store          *storage.Storage
	candidateLimit int
}

func New(store *storage.Storage) (*Index, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Index{store: store, candidateLimit: defaultCandidateLimit}, nil
}

// WithCandidateLimit 调整粗筛阶段的候选 chunk 上限。
func (x *Index) WithCandidateLimit(n int) *Index {
	if n > 0 {
		x.candidateLimit = n
	}
	return x
}

func (x *Index) Search(ctx context.Context, req SearchRequest) ([]InferenceSection, error) {
	if x == nil || x.store == nil {
		return nil, errors.New("index not initialized")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := toChunkSearch(req.Filters)
	q.Terms = candidateTerms(req.Query)
	q.Limit = x.candidateLimit

	chunks, err := x.store.SearchChunks(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	if len(chunks) == 0 {
		return []InferenceSection{}, nil
	}

	docs, err := x.store.GetDocuments(ctx, chunkDocumentIDs(chunks))
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = docs[c.DocumentID].SemanticIdentifier + "\n" + c.Content
	}
	scores := newScorer(req.Query, texts).scores(req.SearchType)

	byDoc := make(map[string]*InferenceSection)
	best := make(map[string]float64)
	var order []string
	for i, c := range chunks {
		doc, ok := docs[c.DocumentID]
		if !ok {
			continue
		}
		score := scores[i]
		ic := toInferenceChunk(c, doc, &score)

		sec, ok := byDoc[c.DocumentID]
		if !ok {
			sec = &InferenceSection{CenterChunk: ic}
			byDoc[c.DocumentID] = sec
			best[c.DocumentID] = score
			order = append(order, c.DocumentID)
		} else if score > best[c.DocumentID] {
			sec.CenterChunk = ic
			best[c.DocumentID] = score
		}
		sec.Chunks = append(sec.Chunks, ic)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if best[order[i]] != best[order[j]] {
			return best[order[i]] > best[order[j]]
		}
		return order[i] < order[j]
	})

	out := make([]InferenceSection, 0, min(limit, len(order)))
	for _, id := range order {
		if len(out) >= limit {
			break
		}
		sec := byDoc[id]
		sort.SliceStable(sec.Chunks, func(i, j int) bool { return sec.Chunks[i].ChunkID < sec.Chunks[j].ChunkID })
		out = append(out, *sec)
	}
	return out, nil
}

func (x *Index) IDBasedRetrieval(ctx context.Context, reqs []ChunkRequest, filters IndexFilters) ([]InferenceChunk, error) {
	if x == nil || x.store == nil {
		return nil, errors.New("index not initialized")
	}

	var out []InferenceChunk
	for _, r := range reqs {
		doc, err := x.store.GetDocument(ctx, r.DocumentID)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !matchesFilters(*doc, filters) {
			continue
		}

		chunks, err := x.store.QueryChunkRange(ctx, storage.ChunkRange{
			DocumentID:    r.DocumentID,
			MinChunkIndex: r.MinChunkIndex,
			MaxChunkIndex: r.MaxChunkIndex,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			out = append(out, toInferenceChunk(c, *doc, nil))
		}
	}
	return out, nil
}

func toChunkSearch(f IndexFilters) storage.ChunkSearch {
	q := storage.ChunkSearch{
		SourceTypes:  f.SourceType,
		DocumentSets: f.DocumentSet,
		TimeCutoff:   f.TimeCutoff,
	}
	for _, t := range f.Tags {
		q.Tags = append(q.Tags, storage.TagFilter{Key: t.Key, Value: t.Value})
	}
	return q
}

func matchesFilters(doc storage.Document, f IndexFilters) bool {
	if len(f.SourceType) > 0 && !contains(f.SourceType, doc.SourceType) {
		return false
	}
	if f.TimeCutoff != nil && (doc.DocUpdatedAt == nil || doc.DocUpdatedAt.Before(*f.TimeCutoff)) {
		return false
	}
	if len(f.DocumentSet) > 0 {
		ok := false
		for _, s := range doc.Sets {
			if contains(f.DocumentSet, s.SetName) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Tags) > 0 {
		ok := false
		for _, want := range f.Tags {
			for _, have := range doc.Tags {
				if have.TagValue == want.Value && (want.Key == "" || have.TagKey == want.Key) {
					ok = true
				}
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func toInferenceChunk(c storage.Chunk, doc storage.Document, score *float64) InferenceChunk {
	ic := InferenceChunk{
		DocumentID:         c.DocumentID,
		ChunkID:            c.ChunkIndex,
		Content:            c.Content,
		SemanticIdentifier: doc.SemanticIdentifier,
		SourceType:         doc.SourceType,
		Score:              score,
		Metadata:           doc.Metadata,
	}
	if doc.Link != "" {
		ic.SourceLinks = map[int]string{0: doc.Link}
	}
	if doc.DocUpdatedAt != nil {
		t := doc.DocUpdatedAt.UTC().Truncate(time.Second)
		ic.UpdatedAt = &t
	}
	return ic
}

func chunkDocumentIDs(chunks []storage.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var ids []string
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
