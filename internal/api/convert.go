package api

import (
	"net/url"
	"sort"
	"time"

	"echvid/internal/accounts"
	"echvid/internal/deps"
	"echvid/internal/queue"
	"echvid/internal/workflow"
)

// FromJob converts a queue job into its transport representation.
func FromJob(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		ID:              job.ID,
		Filename:        job.Filename,
		UserID:          job.UserID,
		Status:          string(job.Status),
		Stage:           job.Status.StageKey(),
		SourceLang:      job.SourceLang,
		TargetLang:      job.TargetLang,
		TranslationLang: job.TranslationLang,
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		Attempts:        job.Attempts,
		CancelRequested: job.CancelRequested,
		ErrorKind:       job.ErrorKind,
		ErrorMessage:    job.ErrorMessage,
		FailedStage:     job.FailedStage,
		CorrelationID:   job.CorrelationID,
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
		NextAttemptAt:   formatTimePtr(job.NextAttemptAt),
		CompletedAt:     formatTimePtr(job.CompletedAt),
	}
	if job.Status == queue.StatusSucceeded && job.OutputPath != "" {
		view.VideoURL = OutputURL(job.Filename)
	}
	return view
}

// FromJobs converts a job slice, never returning nil.
func FromJobs(jobs []*queue.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// OutputURL is the download route of a job's final video.
func OutputURL(filename string) string {
	return "/api/output/" + url.PathEscape(filename)
}

// FromMedia converts a media record.
func FromMedia(media *queue.Media) MediaView {
	if media == nil {
		return MediaView{}
	}
	return MediaView{
		ID:        media.ID,
		Filename:  media.Filename,
		Title:     media.Title,
		Source:    media.Source,
		SourceURL: media.SourceURL,
		Duration:  media.Duration,
		CreatedAt: formatTime(media.CreatedAt),
	}
}

// FromUser converts an account.
func FromUser(user *accounts.User) UserView {
	if user == nil {
		return UserView{}
	}
	return UserView{ID: user.ID, Email: user.Email, Plan: string(user.Plan), Role: string(user.Role)}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}
	out := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		QueueStats:  stats,
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary),
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		out.LastJob = &last
	}
	return out
}

// StageHealthSlice orders stage health by name for deterministic output.
func StageHealthSlice(summary workflow.StatusSummary) []StageHealth {
	out := make([]StageHealth, 0, len(summary.StageHealth))
	for name, health := range summary.StageHealth {
		out = append(out, StageHealth{Name: name, Ready: health.Ready, Detail: health.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromDependencies converts tool availability reports.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
