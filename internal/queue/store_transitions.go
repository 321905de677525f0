package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func rollbackCase(column string) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(stageRollbackTransitions)*2)
	b.WriteString("CASE " + column)
	for _, t := range stageRollbackTransitions {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, t.from, t.to)
	}
	b.WriteString(" ELSE status END")
	return b.String(), args
}

// advanceCase maps a resting status to the running status of the next stage.
func advanceCase(column string) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(stageRollbackTransitions)*2)
	b.WriteString("CASE " + column)
	for _, t := range stageRollbackTransitions {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, t.to, t.from)
	}
	b.WriteString(" ELSE status END")
	return b.String(), args
}

func processingArgs() []any {
	args := make([]any, 0, len(stageRollbackTransitions))
	for _, t := range stageRollbackTransitions {
		args = append(args, t.from)
	}
	return args
}

// ResetStuckProcessing returns every claimed or running job to its last
// completed state. The daemon calls it at startup, when no worker can hold a
// claim.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	caseExpr, args := rollbackCase("status")
	args = append(args, timestamp(time.Now()))
	args = append(args, processingArgs()...)
	res, err := s.exec(
		ctx,
		`UPDATE jobs
         SET status = `+caseExpr+`,
             claimed_by = NULL, progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (`+makePlaceholders(len(stageRollbackTransitions))+`) OR claimed_by IS NOT NULL`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := s.FinishRequestedCancels(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := timestamp(time.Now())
	if err := s.execNoResult(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing releases jobs whose worker stopped heartbeating
// before cutoff and rolls them back to their last completed state.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	caseExpr, args := rollbackCase("status")
	args = append(args, timestamp(time.Now()), timestamp(cutoff))
	res, err := s.exec(
		ctx,
		`UPDATE jobs
         SET status = `+caseExpr+`,
             claimed_by = NULL, progress_stage = 'Reclaimed from stale processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE claimed_by IS NOT NULL AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := s.FinishRequestedCancels(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// RetryFailed moves failed or canceled jobs back to the resting status before
// the stage that stopped them, so completed artifacts are reused. With no ids
// every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	caseExpr, args := rollbackCase("failed_stage")
	// failed_stage is empty for jobs canceled while pending.
	caseExpr = strings.Replace(caseExpr, "ELSE status END", "ELSE '"+string(StatusPending)+"' END", 1)
	args = append(args, timestamp(time.Now()))

	query := `UPDATE jobs
        SET status = ` + caseExpr + `,
            progress_stage = 'Retry requested', progress_percent = 0, progress_message = NULL,
            error_kind = NULL, error_message = NULL, attempts = 0, next_attempt_at = NULL,
            cancel_requested = 0, claimed_by = NULL, completed_at = NULL, updated_at = ?`
	if len(ids) == 0 {
		query += ` WHERE status = ?`
		args = append(args, StatusFailed)
	} else {
		query += ` WHERE status IN (?, ?) AND id IN (` + makePlaceholders(len(ids)) + `)`
		args = append(args, StatusFailed, StatusCanceled)
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("retry jobs: %w", ErrDuplicateJob)
		}
		return 0, fmt.Errorf("retry jobs: %w", err)
	}
	return res.RowsAffected()
}

// CancelOutcome reports what RequestCancel did.
type CancelOutcome string

const (
	CancelNotFound  CancelOutcome = "not_found"
	CancelTerminal  CancelOutcome = "already_terminal"
	CancelImmediate CancelOutcome = "canceled"
	CancelRequested CancelOutcome = "requested"
)

// cancelResting finishes unclaimed jobs in a resting status as canceled,
// recording the stage they would have run next. where narrows the rows.
func (s *Store) cancelResting(ctx context.Context, where string, whereArgs ...any) (int64, error) {
	now := timestamp(time.Now())
	resting := RestingStatuses()
	nextExpr, args := advanceCase("status")
	args = append(args, StatusCanceled, now, now)
	args = append(args, statusArgs(resting)...)
	args = append(args, whereArgs...)
	res, err := s.exec(
		ctx,
		`UPDATE jobs
         SET failed_stage = `+nextExpr+`, status = ?,
             progress_stage = 'Canceled', progress_message = 'Canceled by request',
             progress_percent = 0, next_attempt_at = NULL, completed_at = ?, updated_at = ?
         WHERE claimed_by IS NULL AND status IN (`+makePlaceholders(len(resting))+`) AND `+where,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FinishRequestedCancels cancels jobs whose cancellation was requested while
// a worker held them but that went back to a resting status without one
// (restart reset, stale reclaim, retry scheduling, shutdown rollback).
func (s *Store) FinishRequestedCancels(ctx context.Context) (int64, error) {
	n, err := s.cancelResting(ctx, "cancel_requested = 1")
	if err != nil {
		return 0, fmt.Errorf("finish requested cancels: %w", err)
	}
	return n, nil
}

// RequestCancel cancels an unclaimed job immediately. A job held by a worker
// gets its cancellation flag set; the worker stops before its next stage.
func (s *Store) RequestCancel(ctx context.Context, id string) (CancelOutcome, error) {
	n, err := s.cancelResting(ctx, "id = ?", id)
	if err != nil {
		return "", fmt.Errorf("cancel job: %w", err)
	}
	if n > 0 {
		return CancelImmediate, nil
	}

	now := timestamp(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		now, id, StatusSucceeded, StatusFailed, StatusCanceled,
	)
	if err != nil {
		return "", fmt.Errorf("request cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return CancelRequested, nil
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return CancelNotFound, nil
	}
	return CancelTerminal, nil
}

// Release drops a worker's claim without changing the job status, used when
// a worker shuts down between stages.
func (s *Store) Release(ctx context.Context, id string) error {
	if err := s.execNoResult(
		ctx,
		`UPDATE jobs SET claimed_by = NULL, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		timestamp(time.Now()), id,
	); err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}
