package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/storage"
)

// RetentionCollector 定期清理审计记录。
type RetentionCollector struct {
	cfg RetentionConfig

	store *storage.Storage
}

func NewRetentionCollector(store *storage.Storage, cfg RetentionConfig) (*RetentionCollector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &RetentionCollector{cfg: cfg.withDefaults(), store: store}, nil
}

func (c *RetentionCollector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	if _, err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// RunOnce 先按 KeepDays 删除过期记录，再按 KeepLatest 截断，返回删除总数。
func (c *RetentionCollector) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	if c == nil || c.store == nil {
		return 0, errors.New("retention collector not initialized")
	}

	var total int64
	if c.cfg.KeepDays > 0 {
		n, err := c.store.DeleteAuditRecordsBefore(ctx, now.AddDate(0, 0, -c.cfg.KeepDays))
		total += n
		if err != nil {
			c.cfg.OnError(err)
			return total, err
		}
	}
	if c.cfg.KeepLatest > 0 {
		n, err := c.store.DeleteAuditRecordsKeepLatest(ctx, c.cfg.KeepLatest)
		total += n
		if err != nil {
			c.cfg.OnError(err)
			return total, err
		}
	}
	if total > 0 {
		log.Infof("pruned %d audit records", total)
	}
	return total, nil
}
