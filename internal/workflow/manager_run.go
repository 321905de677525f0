package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"echvid/internal/logging"
)

// Start launches the worker pool and the stale-job reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if !m.configured() {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	workers := m.cfg.Workflow.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	go m.runReclaimer(runCtx)
	for i := 1; i <= workers; i++ {
		go m.runWorker(runCtx, workerName(i))
	}

	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// roll back or release their claims.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

func workerName(index int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "echvid"
	}
	return fmt.Sprintf("%s-%d-w%d", host, os.Getpid(), index)
}

func (m *Manager) runWorker(ctx context.Context, name string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldWorker, name))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.Claim(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.wait(ctx, m.cfg.Workflow.PollInterval())
			continue
		}

		m.processJob(ctx, name, job)
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	interval := m.cfg.Workflow.Heartbeat()
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := m.heartbeat.ReclaimStaleJobs(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim next job", "queue_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.wait(ctx, m.cfg.Workflow.ErrorBackoff())
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
