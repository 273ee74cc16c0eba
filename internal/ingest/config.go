package ingest

import (
	"runtime"
	"time"

	"github.com/wwwzy/DocAgent/internal/docindex"
)

type ErrorHandler func(err error)

// Config 控制 PDF 入库流水线。
type Config struct {
	// Workers 为并发处理 PDF 的 worker 数量；OCR 较慢，通常按 CPU 数设置。
	Workers int `mapstructure:"workers"`
	// QueueSize 为待处理文件队列的缓冲大小。
	QueueSize int `mapstructure:"queue_size"`
	// BatchSize 为单次写入数据库的最大文档数；达到批量即触发一次落库。
	BatchSize int `mapstructure:"batch_size"`
	// FlushInterval 为写入端的最大等待时间；即使未达到 BatchSize，也会按该间隔定时落库。
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// ChunkSize/ChunkOverlap 以字符计。
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	SourceType string `mapstructure:"source_type"`
	// Tags/DocumentSets 会附加到本次入库的每一篇文档上。
	Tags         []docindex.Tag `mapstructure:"-"`
	DocumentSets []string       `mapstructure:"document_sets"`

	// WatchInterval > 0 时按该周期重新扫描路径，只处理修改时间变化过的文件；否则处理一遍后退出。
	WatchInterval time.Duration `mapstructure:"watch_interval"`

	// OnError 为单个文件处理失败或落库失败时的回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

// RetentionConfig 控制审计记录的定期清理。
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// KeepDays 之前的审计记录会被删除；<=0 不按时间清理。
	KeepDays int `mapstructure:"keep_days"`
	// KeepLatest 只保留最近 N 条；<=0 不按条数清理。
	KeepLatest int `mapstructure:"keep_latest"`

	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Workers:       max(2, runtime.NumCPU()),
		QueueSize:     64,
		BatchSize:     16,
		FlushInterval: 2 * time.Second,
		ChunkSize:     1000,
		ChunkOverlap:  200,
		SourceType:    "file",
	}
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:    false,
		Interval:   time.Hour,
		KeepDays:   30,
		KeepLatest: 10000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = min(d.ChunkOverlap, c.ChunkSize/5)
	}
	if c.SourceType == "" {
		c.SourceType = d.SourceType
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
