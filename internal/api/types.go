package api

import (
	"github.com/go-playground/validator/v10"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var validate = validator.New()

// LoginRequest exchanges account credentials for a bearer token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token and the account it belongs to.
type LoginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expiresAt"`
	User      UserView `json:"user"`
}

// UserView is an account without credentials.
type UserView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Plan  string `json:"plan"`
	Role  string `json:"role"`
}

// DownloadRequest asks the acquirer to fetch a remote video.
type DownloadRequest struct {
	VideoURL string `json:"video_url" validate:"required,url"`
}

// ProcessRequest starts the full dubbing pipeline for an uploaded video.
// Language is accepted as an alias of TranslationLang.
type ProcessRequest struct {
	Filename        string `json:"filename" validate:"required,max=255"`
	SourceLang      string `json:"source_lang" validate:"omitempty,bcp47_language_tag"`
	TargetLang      string `json:"target_lang" validate:"omitempty,bcp47_language_tag"`
	TranslationLang string `json:"translation_lang" validate:"omitempty,bcp47_language_tag"`
	Language        string `json:"language" validate:"omitempty,bcp47_language_tag"`
}

// MediaView describes an acquired source video.
type MediaView struct {
	ID        int64  `json:"id"`
	Filename  string `json:"filename"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	SourceURL string `json:"sourceUrl,omitempty"`
	Duration  string `json:"duration"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// AcquireResponse is returned by upload and download_url.
type AcquireResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     int64  `json:"size"`
}

// ProcessResponse acknowledges an accepted pipeline job.
type ProcessResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
}

// JobProgress captures stage progress information for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// JobView describes a queue job in a transport-friendly format.
type JobView struct {
	ID              string      `json:"id"`
	Filename        string      `json:"filename"`
	UserID          int64       `json:"userId"`
	Status          string      `json:"status"`
	Stage           string      `json:"stage,omitempty"`
	SourceLang      string      `json:"sourceLang,omitempty"`
	TargetLang      string      `json:"targetLang,omitempty"`
	TranslationLang string      `json:"translationLang"`
	Progress        JobProgress `json:"progress"`
	Attempts        int         `json:"attempts"`
	CancelRequested bool        `json:"cancelRequested"`
	ErrorKind       string      `json:"errorKind,omitempty"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
	FailedStage     string      `json:"failedStage,omitempty"`
	NextAttemptAt   string      `json:"nextAttemptAt,omitempty"`
	VideoURL        string      `json:"videoUrl,omitempty"`
	CorrelationID   string      `json:"correlationId,omitempty"`
	CreatedAt       string      `json:"createdAt,omitempty"`
	UpdatedAt       string      `json:"updatedAt,omitempty"`
	CompletedAt     string      `json:"completedAt,omitempty"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// RetryResponse reports how many jobs were returned to the queue.
type RetryResponse struct {
	Retried int64   `json:"retried"`
	Job     JobView `json:"job"`
}

// CancelResponse reports the cancellation outcome.
type CancelResponse struct {
	Outcome string `json:"outcome"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *JobView       `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates runtime information for GET /api/status.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
