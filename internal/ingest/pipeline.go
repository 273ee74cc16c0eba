package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/pdfreader"
	"github.com/wwwzy/DocAgent/internal/storage"
)

// ProcessFunc 把一个 PDF 文件转换为待写入的文档。
type ProcessFunc func(ctx context.Context, path string) (storage.Document, error)

// Stats 为一次（或监听模式下累计的）入库统计。
type Stats struct {
	Discovered int64
	Skipped    int64
	Failed     int64
	Indexed    int64
	Chunks     int64
}

type counters struct {
	discovered, skipped, failed, indexed, chunks atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Discovered: c.discovered.Load(),
		Skipped:    c.skipped.Load(),
		Failed:     c.failed.Load(),
		Indexed:    c.indexed.Load(),
		Chunks:     c.chunks.Load(),
	}
}

// Pipeline 发现 PDF、并发抽取文本并分批写入存储。
type Pipeline struct {
	cfg Config

	store      *storage.Storage
	readerOpts []pdfreader.Option
	process    ProcessFunc

	seenMu sync.Mutex
	seen   map[string]time.Time

	counts counters
}

func NewPipeline(store *storage.Storage, cfg Config, opts ...pdfreader.Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Pipeline{
		cfg:        cfg.withDefaults(),
		store:      store,
		readerOpts: opts,
		seen:       make(map[string]time.Time),
	}, nil
}

// WithProcessor 替换默认的 PDF 处理函数。
func (p *Pipeline) WithProcessor(fn ProcessFunc) *Pipeline {
	p.process = fn
	return p
}

func (p *Pipeline) Stats() Stats {
	return p.counts.snapshot()
}

// Run 处理 patterns 匹配到的全部 PDF。WatchInterval > 0 时持续重新扫描，直到 ctx 结束。
func (p *Pipeline) Run(ctx context.Context, patterns []string) (Stats, error) {
	if p == nil || p.store == nil {
		return Stats{}, errors.New("ingest pipeline not initialized")
	}
	processFn := p.process
	if processFn == nil {
		processFn = p.processFile
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string, p.cfg.QueueSize)
	results := make(chan storage.Document, p.cfg.QueueSize)

	var workersWG sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case path, ok := <-jobs:
					if !ok {
						return
					}
					doc, err := processFn(runCtx, path)
					if err != nil {
						p.fail(path, err)
						continue
					}
					select {
					case <-runCtx.Done():
						return
					case results <- doc:
					}
				}
			}
		}()
	}

	writerDone := make(chan struct{})
	var writerErr error
	go func() {
		defer close(writerDone)
		writerErr = p.writeLoop(runCtx, results)
		if writerErr != nil {
			cancel()
		}
	}()

	enqueueErr := p.enqueueOnce(runCtx, patterns, jobs)
	if enqueueErr != nil && p.cfg.WatchInterval > 0 {
		p.cfg.OnError(enqueueErr)
		enqueueErr = nil
	}

	if enqueueErr == nil && p.cfg.WatchInterval > 0 {
		ticker := time.NewTicker(p.cfg.WatchInterval)
	watch:
		for {
			select {
			case <-runCtx.Done():
				break watch
			case <-ticker.C:
				if err := p.enqueueOnce(runCtx, patterns, jobs); err != nil && !errors.Is(err, ErrNoFiles) {
					p.cfg.OnError(err)
				}
			}
		}
		ticker.Stop()
	}

	close(jobs)
	workersWG.Wait()
	close(results)
	<-writerDone

	if enqueueErr != nil {
		return p.Stats(), enqueueErr
	}
	if writerErr != nil && !errors.Is(writerErr, context.Canceled) {
		return p.Stats(), writerErr
	}
	return p.Stats(), nil
}

func (p *Pipeline) enqueueOnce(ctx context.Context, patterns []string, jobs chan<- string) error {
	files, err := Discover(patterns)
	if err != nil {
		return err
	}

	for _, path := range files {
		info, err := statFile(path)
		if err != nil {
			p.fail(path, err)
			continue
		}
		if !p.markSeen(path, info.ModTime()) {
			p.counts.skipped.Add(1)
			continue
		}
		p.counts.discovered.Add(1)

		select {
		case <-ctx.Done():
			return nil
		case jobs <- path:
		}
	}
	return nil
}

// markSeen 记录文件的修改时间；文件自上次扫描后未变化时返回 false。
func (p *Pipeline) markSeen(path string, mod time.Time) bool {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	if last, ok := p.seen[path]; ok && last.Equal(mod) {
		return false
	}
	p.seen[path] = mod
	return true
}

func (p *Pipeline) fail(path string, err error) {
	p.counts.failed.Add(1)
	p.seenMu.Lock()
	delete(p.seen, path)
	p.seenMu.Unlock()

	err = fmt.Errorf("ingest %s: %w", path, err)
	log.Warnf("%v", err)
	p.cfg.OnError(err)
}

func (p *Pipeline) writeLoop(ctx context.Context, results <-chan storage.Document) error {
	flushTicker := time.NewTicker(p.cfg.FlushInterval)
	defer flushTicker.Stop()

	buf := make([]storage.Document, 0, p.cfg.BatchSize)
	flush := func(ctx context.Context) error {
		if len(buf) == 0 {
			return nil
		}
		if err := p.store.UpsertDocuments(ctx, buf); err != nil {
			buf = buf[:0]
			return fmt.Errorf("write documents: %w", err)
		}
		for _, doc := range buf {
			p.counts.indexed.Add(1)
			p.counts.chunks.Add(int64(len(doc.Chunks)))
			log.Infof("indexed %s (%d chunks)", doc.Link, len(doc.Chunks))
		}
		buf = buf[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case doc, ok := <-results:
			if !ok {
				return flush(ctx)
			}
			buf = append(buf, doc)
			if len(buf) >= p.cfg.BatchSize {
				if err := flush(ctx); err != nil {
					return err
				}
			}
		case <-flushTicker.C:
			if err := flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) processFile(ctx context.Context, path string) (storage.Document, error) {
	info, err := statFile(path)
	if err != nil {
		return storage.Document{}, err
	}
	reader, err := pdfreader.OpenFile(path, p.readerOpts...)
	if err != nil {
		return storage.Document{}, err
	}
	text, err := reader.CompleteText(ctx)
	if err != nil {
		return storage.Document{}, err
	}
	meta := reader.Metadata()

	title := strings.TrimSpace(meta["Title"])
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	mod := info.ModTime().UTC()
	return p.buildDocument(path, title, text, meta, &mod)
}

func (p *Pipeline) buildDocument(path, title, text string, meta map[string]string, mod *time.Time) (storage.Document, error) {
	pieces := ChunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return storage.Document{}, errors.New("no text extracted")
	}

	link := FileLink(path)
	doc := storage.Document{
		ID:                 DocumentID(link),
		SemanticIdentifier: title,
		SourceType:         p.cfg.SourceType,
		Link:               link,
		Metadata:           meta,
		DocUpdatedAt:       mod,
		Chunks:             make([]storage.Chunk, 0, len(pieces)),
	}
	for i, piece := range pieces {
		doc.Chunks = append(doc.Chunks, storage.Chunk{ChunkIndex: i, Content: piece})
	}
	for _, tag := range p.cfg.Tags {
		doc.Tags = append(doc.Tags, storage.DocumentTag{TagKey: tag.Key, TagValue: tag.Value})
	}
	for _, set := range p.cfg.DocumentSets {
		if set = strings.TrimSpace(set); set != "" {
			doc.Sets = append(doc.Sets, storage.DocumentSetMember{SetName: set})
		}
	}
	return doc, nil
}

// FileLink 返回 file:// 形式的绝对路径链接。
func FileLink(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// DocumentID 由链接派生，同一文件重复入库得到相同 ID。
func DocumentID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String()
}
