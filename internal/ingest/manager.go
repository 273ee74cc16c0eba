package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Manager 在后台运行入库流水线与审计清理，并汇总第一个致命错误。
type Manager struct {
	pipeline  *Pipeline
	patterns  []string
	retention *RetentionCollector

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) WithPipeline(p *Pipeline, patterns []string) *Manager {
	if m == nil {
		return nil
	}
	m.pipeline = p
	m.patterns = patterns
	return m
}

func (m *Manager) WithRetention(r *RetentionCollector) *Manager {
	if m == nil {
		return nil
	}
	m.retention = r
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if m.pipeline == nil && m.retention == nil {
		return errors.New("nothing to run: pipeline or retention is required")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.pipeline != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			_, err := m.pipeline.Run(runCtx, m.patterns)
			m.setErr(err)
			// 一次性入库结束后，清理任务也随之结束。
			if m.pipeline.cfg.WatchInterval <= 0 {
				m.cancel()
			}
		}()
	}

	if m.retention != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.setErr(m.retention.Run(runCtx))
		}()
	}

	return nil
}

func (m *Manager) setErr(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	m.runErrMu.Lock()
	if m.runErr == nil {
		m.runErr = err
	}
	m.runErrMu.Unlock()
	m.cancel()
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
