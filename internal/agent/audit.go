package agent

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/storage"
)

const auditTruncateLimit = 2048

// auditor 在工具执行前后写审计记录；store 为 nil 时直接执行。
type auditor struct {
	store *storage.Storage
}

func (a auditor) run(ctx context.Context, action, argsJSON string, fn func(context.Context) (any, error)) (any, error) {
	if a.store == nil {
		return fn(ctx)
	}

	record := &storage.AuditRecord{
		TraceID:    GetTraceID(ctx),
		Action:     action,
		ParamsJSON: truncate(argsJSON, auditTruncateLimit),
		Status:     storage.AuditStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	// 写审计失败不阻断工具执行
	if err := a.store.InsertAuditRecord(ctx, record); err != nil {
		log.Warnf("insert audit record for %s: %v", action, err)
	}

	result, runErr := fn(ctx)

	if record.ID == 0 {
		return result, runErr
	}
	finishedAt := time.Now().UTC()
	status := storage.AuditStatusSuccess
	update := storage.AuditUpdate{Status: &status, FinishedAt: &finishedAt}
	if runErr != nil {
		status = storage.AuditStatusFailed
		msg := truncate(runErr.Error(), auditTruncateLimit)
		update.ErrorMessage = &msg
	} else {
		out := truncate(marshalResult(result), auditTruncateLimit)
		update.ResultJSON = &out
	}
	if err := a.store.UpdateAuditRecord(ctx, record.ID, update); err != nil {
		log.Warnf("update audit record %d: %v", record.ID, err)
	}
	return result, runErr
}

func marshalResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
