package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"echvid/internal/logging"
	"echvid/internal/queue"
	"echvid/internal/services"
)

// handleStageFailure records a stage error on the job. Transient failures
// with attempts left are scheduled for redelivery from the last completed
// status; everything else fails the job.
func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, stg pipelineStage, job *queue.Job, stageErr error) {
	details := services.Details(stageErr)
	message := classifyStageFailure(stg.name, details)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if details.Transient && job.Attempts < m.maxAttempts() {
		delay := m.cfg.Workflow.RetryDelay(job.Attempts)
		job.ScheduleRetry(time.Now().Add(delay), details.Kind, message)
		logging.WarnWithContext(logger, "stage failed; retry scheduled", "job_retry_scheduled",
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.String("error_message", message),
			logging.Int("attempt", job.Attempts),
			logging.Int("max_attempts", m.maxAttempts()),
			logging.Duration("retry_in", delay),
			logging.String("resume_status", string(job.Status)),
			logging.String(logging.FieldErrorHint, "external service failure; the job is redelivered automatically"),
			logging.String(logging.FieldImpact, "job delayed"),
		)
		if err := m.store.Update(persistCtx, job); err != nil {
			m.persistFailed(logger, "persist retry schedule", err)
		}
		m.setLastJob(job)
		return
	}

	job.SetFailed(string(stg.processingStatus), details.Kind, message)
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String("error_message", message),
		logging.Bool("transient", details.Transient),
		logging.Int("attempt", job.Attempts),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(details.Kind)),
	)
	if err := m.store.Update(persistCtx, job); err != nil {
		m.persistFailed(logger, "persist stage failure", err)
	}
	m.setLastJob(job)
	m.notifyJobFailed(persistCtx, logger, stg, job)
	m.checkQueueCompletion(persistCtx)
}

func (m *Manager) maxAttempts() int {
	if m.cfg.Workflow.MaxAttempts <= 0 {
		return 1
	}
	return m.cfg.Workflow.MaxAttempts
}

func classifyStageFailure(stageName string, details services.ErrorDetails) string {
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = fmt.Sprintf("%s failed without error detail", stageName)
	}
	return message
}

func failureHint(kind string) string {
	switch kind {
	case "StorageError":
		return "check the media directory and that the source file still exists"
	case "NoAudioError":
		return "the source video has no audio track"
	case "AcquisitionError":
		return "check the source file or URL"
	case "TranscriptionError", "TranslationError", "SynthesisError":
		return "check the external service credentials and quota"
	case "CompositionError":
		return "check ffmpeg output in the job log"
	case "ConfigurationError":
		return "check the echvid configuration"
	default:
		return "check the job log for details"
	}
}
