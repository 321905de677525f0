package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateJob is returned when a filename already has an active job.
	ErrDuplicateJob = errors.New("an active job already exists for this filename")
	// ErrInvalidSubmission is returned for submissions missing required fields.
	ErrInvalidSubmission = errors.New("invalid job submission")
)

// Enqueue persists a new pending job and returns it with its generated id.
func (s *Store) Enqueue(ctx context.Context, sub Submission) (*Job, error) {
	sub.Filename = strings.TrimSpace(sub.Filename)
	sub.TranslationLang = strings.TrimSpace(sub.TranslationLang)
	if sub.Filename == "" || strings.TrimSpace(sub.SourcePath) == "" {
		return nil, fmt.Errorf("%w: filename and source path are required", ErrInvalidSubmission)
	}
	if sub.TranslationLang == "" {
		return nil, fmt.Errorf("%w: translation language is required", ErrInvalidSubmission)
	}

	id := uuid.NewString()
	now := timestamp(time.Now())
	_, err := s.exec(
		ctx,
		`INSERT INTO jobs (
            id, filename, user_id, source_path, source_lang, target_lang, translation_lang,
            status, correlation_id, progress_stage, progress_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sub.Filename,
		sub.UserID,
		sub.SourcePath,
		nullableString(strings.TrimSpace(sub.SourceLang)),
		nullableString(strings.TrimSpace(sub.TargetLang)),
		sub.TranslationLang,
		StatusPending,
		nullableString(sub.CorrelationID),
		"Queued",
		"Waiting for a worker",
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, sub.Filename)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(ctx, id)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID fetches a job by identifier. A missing job returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindActiveByFilename returns the non-terminal job for a filename, if any.
func (s *Store) FindActiveByFilename(ctx context.Context, filename string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE filename = ? AND status NOT IN (?, ?, ?) LIMIT 1`,
		filename, StatusSucceeded, StatusFailed, StatusCanceled,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return job, nil
}

// LatestByFilename returns the most recent job for a filename regardless of state.
func (s *Store) LatestByFilename(ctx context.Context, filename string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE filename = ? ORDER BY created_at DESC LIMIT 1`,
		filename,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	if err := s.execNoResult(
		ctx,
		`UPDATE jobs
         SET status = ?, audio_path = ?, transcript_path = ?, translated_path = ?,
             speech_path = ?, output_path = ?, error_kind = ?, error_message = ?,
             failed_stage = ?, attempts = ?, next_attempt_at = ?, claimed_by = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             last_heartbeat = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		job.Status,
		nullableString(job.AudioPath),
		nullableString(job.TranscriptPath),
		nullableString(job.TranslatedPath),
		nullableString(job.SpeechPath),
		nullableString(job.OutputPath),
		nullableString(job.ErrorKind),
		nullableString(job.ErrorMessage),
		nullableString(job.FailedStage),
		job.Attempts,
		nullableTime(job.NextAttemptAt),
		nullableString(job.ClaimedBy),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		nullableTime(job.LastHeartbeat),
		timestamp(job.UpdatedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// CancelRequested reads the cooperative cancellation flag for a job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// Claim atomically hands the oldest runnable job to a worker and moves it
// into the running status of its next stage. It returns nil when nothing is
// runnable. Attempts is incremented for every claim. Unclaimed jobs with a
// pending cancellation are finished as canceled first.
func (s *Store) Claim(ctx context.Context, worker string) (*Job, error) {
	if _, err := s.FinishRequestedCancels(ctx); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	resting := RestingStatuses()

	caseExpr, caseArgs := advanceCase("status")

	query := `UPDATE jobs
        SET status = ` + caseExpr + `,
            claimed_by = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?,
            next_attempt_at = NULL
        WHERE id = (
            SELECT id FROM jobs
            WHERE status IN (` + makePlaceholders(len(resting)) + `)
              AND claimed_by IS NULL
              AND cancel_requested = 0
              AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
            ORDER BY created_at
            LIMIT 1
        )
        RETURNING ` + jobColumns

	args := append([]any{}, caseArgs...)
	args = append(args, worker, timestamp(now), timestamp(now))
	args = append(args, statusArgs(resting)...)
	args = append(args, timestamp(now))

	job, err := withBusyRetry(ctx, func(ctx context.Context) (*Job, error) {
		return scanJob(s.db.QueryRowContext(ctx, query, args...))
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	UserID   int64
	Limit    int
}

// List returns jobs ordered by creation time, optionally filtered.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		args = append(args, statusArgs(filter.Statuses)...)
	}
	if filter.UserID > 0 {
		clauses = append(clauses, `user_id = ?`)
		args = append(args, filter.UserID)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes succeeded, failed and canceled jobs.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE status IN (?, ?, ?)`, StatusSucceeded, StatusFailed, StatusCanceled)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every job.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
