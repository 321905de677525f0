package workflow

import (
	"log/slog"
	"path/filepath"
	"strings"

	"echvid/internal/logging"
	"echvid/internal/queue"
)

// JobLogPath is where a job's own JSON log is appended, one file per job id.
func JobLogPath(logDir, jobID string) string {
	return filepath.Join(logDir, "jobs", jobID+".log")
}

// openJobLog tees logger into the job's log file. The returned func closes
// the file; it is safe to call when no file was opened.
func (m *Manager) openJobLog(job *queue.Job, logger *slog.Logger) (*slog.Logger, func()) {
	if logger == nil {
		logger = m.logger
	}
	logDir := strings.TrimSpace(m.cfg.Paths.LogDir)
	if logDir == "" || job == nil {
		return logger, func() {}
	}
	handler, closer, err := logging.NewJSONFileHandler(JobLogPath(logDir, job.ID), "debug")
	if err != nil {
		logging.WarnWithContext(logger, "job log unavailable", "job_log_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "job output only goes to the daemon log"),
		)
		return logger, func() {}
	}
	return logging.TeeLogger(logger, handler), func() { _ = closer.Close() }
}
