package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"echvid/internal/api"
	"echvid/internal/queue"
)

func toJobViews(jobs []*queue.Job) []api.JobView {
	return api.FromJobs(jobs)
}

func toJobView(job *queue.Job) api.JobView {
	return api.FromJob(job)
}

func buildJobRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			job.Filename,
			strconv.FormatInt(job.UserID, 10),
			jobStatusLabel(job),
			languagePair(job),
			fmt.Sprintf("%.0f%%", job.ProgressPercent),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func jobStatusLabel(job *queue.Job) string {
	label := formatStatusLabel(string(job.Status))
	if job.CancelRequested && !queue.IsTerminalStatus(job.Status) {
		label += " (canceling)"
	}
	return label
}

func languagePair(job *queue.Job) string {
	source := job.SourceLang
	if source == "" {
		source = "auto"
	}
	return source + " -> " + job.TranslationLang
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderJobDetail(out io.Writer, job *queue.Job) {
	rows := [][2]string{
		{"ID", job.ID},
		{"Filename", job.Filename},
		{"User", strconv.FormatInt(job.UserID, 10)},
		{"Status", jobStatusLabel(job)},
		{"Languages", languagePair(job)},
		{"Target language", job.TargetLang},
		{"Progress", fmt.Sprintf("%.0f%% %s", job.ProgressPercent, strings.TrimSpace(job.ProgressMessage))},
		{"Attempts", strconv.Itoa(job.Attempts)},
		{"Source", job.SourcePath},
		{"Audio", job.AudioPath},
		{"Transcript", job.TranscriptPath},
		{"Translation", job.TranslatedPath},
		{"Speech", job.SpeechPath},
		{"Output", job.OutputPath},
		{"Correlation", job.CorrelationID},
		{"Created", formatDisplayTime(job.CreatedAt)},
		{"Updated", formatDisplayTime(job.UpdatedAt)},
	}
	if job.NextAttemptAt != nil {
		rows = append(rows, [2]string{"Next attempt", formatDisplayTime(*job.NextAttemptAt)})
	}
	if job.CompletedAt != nil {
		rows = append(rows, [2]string{"Completed", formatDisplayTime(*job.CompletedAt)})
	}
	if job.ErrorMessage != "" {
		rows = append(rows,
			[2]string{"Failed stage", job.FailedStage},
			[2]string{"Error", job.ErrorKind + ": " + job.ErrorMessage},
		)
	}
	for _, row := range rows {
		if strings.TrimSpace(row[1]) == "" {
			continue
		}
		fmt.Fprintf(out, "%-15s %s\n", row[0]+":", row[1])
	}
}
