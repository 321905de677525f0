package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, filename, user_id, source_path, source_lang, target_lang, translation_lang, status, audio_path, transcript_path, translated_path, speech_path, output_path, error_kind, error_message, failed_stage, attempts, next_attempt_at, cancel_requested, claimed_by, correlation_id, progress_stage, progress_percent, progress_message, last_heartbeat, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		sourceLang      sql.NullString
		targetLang      sql.NullString
		statusStr       string
		audioPath       sql.NullString
		transcriptPath  sql.NullString
		translatedPath  sql.NullString
		speechPath      sql.NullString
		outputPath      sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		failedStage     sql.NullString
		nextAttemptRaw  sql.NullString
		cancelRequested int64
		claimedBy       sql.NullString
		correlationID   sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
		heartbeatRaw    sql.NullString
		createdRaw      string
		updatedRaw      string
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Filename,
		&job.UserID,
		&job.SourcePath,
		&sourceLang,
		&targetLang,
		&job.TranslationLang,
		&statusStr,
		&audioPath,
		&transcriptPath,
		&translatedPath,
		&speechPath,
		&outputPath,
		&errorKind,
		&errorMessage,
		&failedStage,
		&job.Attempts,
		&nextAttemptRaw,
		&cancelRequested,
		&claimedBy,
		&correlationID,
		&progressStage,
		&job.ProgressPercent,
		&progressMessage,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job.SourceLang = sourceLang.String
	job.TargetLang = targetLang.String
	job.Status = Status(statusStr)
	job.AudioPath = audioPath.String
	job.TranscriptPath = transcriptPath.String
	job.TranslatedPath = translatedPath.String
	job.SpeechPath = speechPath.String
	job.OutputPath = outputPath.String
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.FailedStage = failedStage.String
	job.CancelRequested = cancelRequested != 0
	job.ClaimedBy = claimedBy.String
	job.CorrelationID = correlationID.String
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMessage.String
	job.NextAttemptAt = parseNullableTime(nextAttemptRaw)
	job.LastHeartbeat = parseNullableTime(heartbeatRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return timestamp(*value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
