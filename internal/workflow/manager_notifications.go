package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"echvid/internal/logging"
	"echvid/internal/notifications"
	"echvid/internal/queue"
)

func (m *Manager) onJobSucceeded(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	logger.Info("job succeeded",
		logging.String(logging.FieldEventType, "job_succeeded"),
		logging.String("filename", job.Filename),
		logging.String("output", job.OutputPath),
	)
	m.publish(ctx, logger, notifications.EventJobSucceeded, notifications.Payload{
		"filename": job.Filename,
		"language": job.TranslationLang,
		"output":   job.OutputPath,
	})
	m.checkQueueCompletion(ctx)
}

func (m *Manager) notifyJobFailed(ctx context.Context, logger *slog.Logger, stg pipelineStage, job *queue.Job) {
	m.publish(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"filename": job.Filename,
		"stage":    stg.name,
		"kind":     job.ErrorKind,
		"message":  job.ErrorMessage,
	})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, notification skipped", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func (m *Manager) onJobStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.statsUnavailable(err, "start notification will not be sent")
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	m.publish(ctx, m.logger, notifications.EventQueueStarted, notifications.Payload{"count": countActiveJobs(stats)})
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.statsUnavailable(err, "completion notification will not be sent")
		return
	}
	if countActiveJobs(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	m.publish(ctx, m.logger, notifications.EventQueueCompleted, notifications.Payload{
		"succeeded": stats[queue.StatusSucceeded],
		"failed":    stats[queue.StatusFailed],
		"duration":  duration,
	})
}

func (m *Manager) statsUnavailable(err error, impact string) {
	if errors.Is(err, context.Canceled) {
		m.logger.Debug("daemon shutting down, queue stats skipped")
		return
	}
	logging.WarnWithContext(m.logger, "queue stats unavailable; notification skipped", "queue_stats_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.String(logging.FieldImpact, impact),
	)
}

func countActiveJobs(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		if queue.IsTerminalStatus(status) {
			continue
		}
		total += count
	}
	return total
}
