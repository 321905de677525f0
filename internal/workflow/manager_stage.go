package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"echvid/internal/logging"
	"echvid/internal/queue"
	"echvid/internal/services"
	"echvid/internal/stage"
)

const persistTimeout = 5 * time.Second

// processJob drives a claimed job through its remaining stages. It returns
// once the job is terminal, scheduled for retry, or handed back to the queue.
func (m *Manager) processJob(ctx context.Context, worker string, job *queue.Job) {
	correlationID := strings.TrimSpace(job.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithWorker(jobCtx, worker)
	jobCtx = services.WithRequestID(jobCtx, correlationID)
	if job.UserID > 0 {
		jobCtx = services.WithUserID(jobCtx, job.UserID)
	}

	base, closeLog := m.openJobLog(job, m.logger)
	defer closeLog()
	logger := logging.WithContext(jobCtx, base)

	m.setLastJob(job)
	m.onJobStarted(jobCtx)
	logger.Info("job claimed",
		logging.String(logging.FieldEventType, "job_claimed"),
		logging.String("filename", job.Filename),
		logging.String("status", string(job.Status)),
		logging.Int("attempt", job.Attempts),
	)

	for {
		stg, ok := m.stageFor(job.Status)
		if !ok {
			logging.WarnWithContext(logger, "no stage configured for status", "stage_missing",
				logging.String("status", string(job.Status)),
				logging.String(logging.FieldImpact, "job returned to the queue"),
			)
			m.returnToQueue(jobCtx, logger, job, "No stage configured")
			return
		}
		if m.cancelRequested(jobCtx, logger, job) {
			m.cancelJob(jobCtx, logger, job)
			return
		}
		if !m.executeStage(jobCtx, base, stg, job) {
			return
		}
		if stg.final() {
			return
		}
		if ctx.Err() != nil {
			m.returnToQueue(jobCtx, logger, job, queue.DaemonStopReason)
			return
		}
		next, ok := queue.NextRunningStatus(job.Status)
		if !ok {
			m.returnToQueue(jobCtx, logger, job, "No next stage")
			return
		}
		job.Status = next
	}
}

// executeStage runs one stage and persists its outcome. It reports whether
// the job may continue to the next stage.
func (m *Manager) executeStage(ctx context.Context, base *slog.Logger, stg pipelineStage, job *queue.Job) bool {
	stageCtx := services.WithStage(ctx, stg.name)
	logger := logging.WithContext(stageCtx, base)

	if stg.handler == nil {
		err := services.Wrap(services.ErrConfiguration, stg.name, "dispatch", "No handler registered for stage", nil)
		job.Status = stg.processingStatus
		m.handleStageFailure(stageCtx, logger, stg, job, err)
		m.setLastError(err)
		return false
	}

	m.markProcessing(job, stg)
	if err := m.store.Update(stageCtx, job); err != nil {
		m.persistFailed(logger, "persist processing transition", err)
		return false
	}
	m.setLastJob(job)

	started := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.Int("attempt", job.Attempts),
	)

	if err := stg.handler.Prepare(stageCtx, job); err != nil {
		m.handleStageError(stageCtx, logger, stg, job, err)
		return false
	}
	if err := m.executeWithHeartbeat(stageCtx, stg.handler, job); err != nil {
		m.handleStageError(stageCtx, logger, stg, job, err)
		return false
	}

	if stg.final() {
		job.SetSucceeded()
	} else {
		job.Status = stg.doneStatus
		job.LastHeartbeat = nil
		job.SetProgress(stg.label, stg.label+" complete", 100)
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(stageCtx), persistTimeout)
	defer cancel()
	if err := m.store.Update(persistCtx, job); err != nil {
		m.persistFailed(logger, "persist stage result", err)
		return false
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(started)),
	)
	m.setLastJob(job)
	if stg.final() {
		m.onJobSucceeded(persistCtx, logger, job)
	}
	return true
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	err := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return err
}

func (m *Manager) markProcessing(job *queue.Job, stg pipelineStage) {
	now := time.Now().UTC()
	job.Status = stg.processingStatus
	job.ErrorKind = ""
	job.ErrorMessage = ""
	job.FailedStage = ""
	job.NextAttemptAt = nil
	job.LastHeartbeat = &now
	job.SetProgress(stg.label, stg.label+" started", 0)
}

// handleStageError separates shutdown interruptions from real failures.
func (m *Manager) handleStageError(ctx context.Context, logger *slog.Logger, stg pipelineStage, job *queue.Job, err error) {
	if ctx.Err() != nil {
		logger.Info("stage interrupted by shutdown",
			logging.String(logging.FieldEventType, "stage_interrupted"),
			logging.Error(err),
		)
		m.returnToQueue(ctx, logger, job, queue.DaemonStopReason)
		return
	}
	m.handleStageFailure(ctx, logger, stg, job, err)
	m.setLastError(err)
}

func (m *Manager) cancelRequested(ctx context.Context, logger *slog.Logger, job *queue.Job) bool {
	requested, err := m.store.CancelRequested(ctx, job.ID)
	if err != nil {
		logging.WarnWithContext(logger, "cancel flag unavailable", "cancel_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "job continues; cancellation checked again before the next stage"),
		)
		return false
	}
	return requested
}

func (m *Manager) cancelJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	job.SetCanceled()
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.Update(persistCtx, job); err != nil {
		m.persistFailed(logger, "persist cancellation", err)
		return
	}
	logger.Info("job canceled",
		logging.String(logging.FieldEventType, "job_canceled"),
		logging.String("next_stage", job.FailedStage),
	)
	m.setLastJob(job)
	m.checkQueueCompletion(persistCtx)
}

// returnToQueue rolls the job back to its last completed status and drops
// the claim without consuming a delivery attempt.
func (m *Manager) returnToQueue(ctx context.Context, logger *slog.Logger, job *queue.Job, reason string) {
	job.Status = queue.RollbackStatus(job.Status)
	job.ClaimedBy = ""
	job.LastHeartbeat = nil
	if job.Attempts > 0 {
		job.Attempts--
	}
	job.SetProgress("Interrupted", reason, 0)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.Update(persistCtx, job); err != nil {
		m.persistFailed(logger, "persist rollback", err)
		return
	}
	logger.Info("job returned to queue",
		logging.String(logging.FieldEventType, "job_released"),
		logging.String("status", string(job.Status)),
		logging.String("reason", reason),
	)
	m.setLastJob(job)
}

func (m *Manager) persistFailed(logger *slog.Logger, op string, err error) {
	wrapped := fmt.Errorf("%s: %w", op, err)
	logging.ErrorWithContext(logger, "failed to persist job state", "queue_update_failed",
		logging.Error(wrapped),
		logging.String(logging.FieldErrorHint, "check queue database access; the reclaimer will recover the job"),
	)
	m.setLastError(wrapped)
}
