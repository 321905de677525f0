package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job. Running statuses (extracting,
// transcribing, ...) are paired with a resting status that records the last
// completed stage; a job interrupted mid-stage rolls back to that resting
// status and resumes from there.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusExtracted    Status = "extracted"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusTranslating  Status = "translating"
	StatusTranslated   Status = "translated"
	StatusSynthesizing Status = "synthesizing"
	StatusSynthesized  Status = "synthesized"
	StatusCompositing  Status = "compositing"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusCanceled     Status = "canceled"
)

// DaemonStopReason is recorded when a running job is interrupted by shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusExtracted,
	StatusTranscribing,
	StatusTranscribed,
	StatusTranslating,
	StatusTranslated,
	StatusSynthesizing,
	StatusSynthesized,
	StatusCompositing,
	StatusSucceeded,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusExtracting:   {},
	StatusTranscribing: {},
	StatusTranslating:  {},
	StatusSynthesizing: {},
	StatusCompositing:  {},
}

var terminalStatuses = map[Status]struct{}{
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCanceled:  {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions maps each running status to the resting status
// that precedes it.
var stageRollbackTransitions = []statusTransition{
	{from: StatusExtracting, to: StatusPending},
	{from: StatusTranscribing, to: StatusExtracted},
	{from: StatusTranslating, to: StatusTranscribed},
	{from: StatusSynthesizing, to: StatusTranslated},
	{from: StatusCompositing, to: StatusSynthesized},
}

// RestingStatuses are the non-terminal statuses a job waits in between
// stages, in pipeline order.
func RestingStatuses() []Status {
	out := make([]Status, 0, len(stageRollbackTransitions))
	for _, t := range stageRollbackTransitions {
		out = append(out, t.to)
	}
	return out
}

// RollbackStatus returns the resting status a running status falls back to.
// Unknown and resting statuses return themselves; anything else maps to pending.
func RollbackStatus(status Status) Status {
	for _, t := range stageRollbackTransitions {
		if t.from == status {
			return t.to
		}
	}
	if _, ok := statusSet[status]; ok && !IsTerminalStatus(status) {
		return status
	}
	return StatusPending
}

// NextRunningStatus returns the running status that follows a resting one.
func NextRunningStatus(resting Status) (Status, bool) {
	for _, t := range stageRollbackTransitions {
		if t.to == resting {
			return t.from, true
		}
	}
	return "", false
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Canceled   int
	Succeeded  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// Submission is the accepted shape of a full-pipeline request.
type Submission struct {
	Filename        string
	SourcePath      string
	UserID          int64
	SourceLang      string
	TargetLang      string
	TranslationLang string
	CorrelationID   string
}

// Job is one full pipeline execution for one source video, keyed by filename.
type Job struct {
	ID              string
	Filename        string
	UserID          int64
	SourcePath      string
	SourceLang      string
	TargetLang      string
	TranslationLang string
	Status          Status
	AudioPath       string
	TranscriptPath  string
	TranslatedPath  string
	SpeechPath      string
	OutputPath      string
	ErrorKind       string
	ErrorMessage    string
	FailedStage     string
	Attempts        int
	NextAttemptAt   *time.Time
	CancelRequested bool
	ClaimedBy       string
	CorrelationID   string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether no further stage will run.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsProcessing returns true when the job is inside a stage.
func (j Job) IsProcessing() bool { return IsProcessingStatus(j.Status) }

// IsTerminal returns true for succeeded, failed and canceled jobs.
func (j Job) IsTerminal() bool { return IsTerminalStatus(j.Status) }

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job failed with a taxonomy kind and message. The job
// keeps the artifacts of completed stages; the failing stage wrote none.
func (j *Job) SetFailed(stage, kind, message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.FailedStage = stage
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.ProgressStage = "Failed"
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.LastHeartbeat = nil
	j.NextAttemptAt = nil
	j.ClaimedBy = ""
	j.CompletedAt = &now
}

// SetCanceled marks the job canceled before its next stage. FailedStage
// records that stage so a later retry resumes there.
func (j *Job) SetCanceled() {
	now := time.Now().UTC()
	if next, ok := NextRunningStatus(RollbackStatus(j.Status)); ok {
		j.FailedStage = string(next)
	}
	j.Status = StatusCanceled
	j.ProgressStage = "Canceled"
	j.ProgressMessage = "Canceled by request"
	j.ProgressPercent = 0
	j.LastHeartbeat = nil
	j.ClaimedBy = ""
	j.CompletedAt = &now
}

// SetSucceeded marks the job complete.
func (j *Job) SetSucceeded() {
	now := time.Now().UTC()
	j.Status = StatusSucceeded
	j.ErrorKind = ""
	j.ErrorMessage = ""
	j.FailedStage = ""
	j.SetProgress("Completed", "Final video ready", 100)
	j.LastHeartbeat = nil
	j.NextAttemptAt = nil
	j.ClaimedBy = ""
	j.CompletedAt = &now
}

// ScheduleRetry rolls a running job back to its last completed state and
// makes it claimable again at the given time. The failure stays visible.
func (j *Job) ScheduleRetry(at time.Time, kind, message string) {
	failed := j.Status
	j.Status = RollbackStatus(failed)
	j.FailedStage = string(failed)
	j.ErrorKind = kind
	j.ErrorMessage = message
	at = at.UTC()
	j.NextAttemptAt = &at
	j.ClaimedBy = ""
	j.LastHeartbeat = nil
	j.SetProgress("Retry scheduled", message, 0)
}

// StageKey returns the user-facing stage label for API/CLI presentation.
func (s Status) StageKey() string {
	switch s {
	case StatusPending:
		return "queued"
	case StatusExtracting, StatusExtracted:
		return "extract"
	case StatusTranscribing, StatusTranscribed:
		return "transcribe"
	case StatusTranslating, StatusTranslated:
		return "translate"
	case StatusSynthesizing, StatusSynthesized:
		return "synthesize"
	case StatusCompositing:
		return "composite"
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return string(s)
	default:
		return ""
	}
}

// Media records an acquired source video.
type Media struct {
	ID        int64
	Filename  string
	UserID    int64
	Title     string
	Source    string
	SourceURL string
	Duration  string
	CreatedAt time.Time
}
