package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
)

// handleFullProcess accepts a dubbing job for an uploaded video and returns
// before any stage runs.
func (s *Server) handleFullProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	translation := strings.TrimSpace(req.TranslationLang)
	if translation == "" {
		translation = strings.TrimSpace(req.Language)
	}
	if translation == "" {
		s.writeError(w, http.StatusBadRequest, "translation_lang is required", "ValidationError")
		return
	}

	filename, err := mediastore.SanitizeFilename(req.Filename)
	if err != nil || filename != strings.TrimSpace(req.Filename) {
		s.writeError(w, http.StatusBadRequest, "filename is not a valid upload name", "ValidationError")
		return
	}
	if !s.media.Exists(mediastore.KindUpload, filename) {
		s.writeError(w, http.StatusNotFound, "uploaded video not found", "NotFoundError")
		return
	}
	id := s.identity(r)
	media, err := s.queue.GetMedia(ctx, filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if media != nil && !canAccess(id, media.UserID) {
		s.writeError(w, http.StatusNotFound, "uploaded video not found", "NotFoundError")
		return
	}

	correlationID, _ := services.RequestIDFromContext(ctx)
	job, err := s.queue.Enqueue(ctx, queue.Submission{
		Filename:        filename,
		SourcePath:      s.media.Path(mediastore.KindUpload, filename),
		UserID:          id.UserID,
		SourceLang:      req.SourceLang,
		TargetLang:      req.TargetLang,
		TranslationLang: translation,
		CorrelationID:   correlationID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log(services.WithJobID(ctx, job.ID)).Info("dubbing job accepted",
		logging.String("filename", filename),
		logging.String("translation_lang", translation),
		logging.String(logging.FieldEventType, "job_enqueued"),
	)
	s.writeJSON(w, http.StatusAccepted, ProcessResponse{
		Message: "Full process started",
		JobID:   job.ID,
		Status:  string(job.Status),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id := s.identity(r)
	filter := queue.ListFilter{UserID: id.UserID}
	query := r.URL.Query()
	if id.IsAdmin() {
		filter.UserID = 0
		if raw := strings.TrimSpace(query.Get("user")); raw != "" {
			uid, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || uid <= 0 {
				s.writeError(w, http.StatusBadRequest, "user must be a positive id", "ValidationError")
				return
			}
			filter.UserID = uid
		}
	} else if filter.UserID <= 0 {
		s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: []JobView{}})
		return
	}
	for _, value := range query["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(value), "ValidationError")
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	jobs, err := s.queue.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: FromJobs(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	outcome, err := s.queue.RequestCancel(r.Context(), job.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	switch outcome {
	case queue.CancelNotFound:
		s.writeError(w, http.StatusNotFound, "job not found", "NotFoundError")
	case queue.CancelTerminal:
		s.writeError(w, http.StatusConflict, "job already finished", "ConflictError")
	default:
		s.log(services.WithJobID(r.Context(), job.ID)).Info("job cancel requested",
			logging.String("outcome", string(outcome)),
			logging.String(logging.FieldEventType, "job_cancel_requested"),
		)
		s.writeJSON(w, http.StatusAccepted, CancelResponse{Outcome: string(outcome)})
	}
}

// handleRetryJob resumes a failed or canceled job from its last completed stage.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	if job.Status != queue.StatusFailed && job.Status != queue.StatusCanceled {
		s.writeError(w, http.StatusConflict, "only failed or canceled jobs can be retried", "ConflictError")
		return
	}
	n, err := s.queue.RetryFailed(r.Context(), job.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	updated, err := s.queue.GetByID(r.Context(), job.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RetryResponse{Retried: n, Job: FromJob(updated)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status != nil {
		s.writeJSON(w, http.StatusOK, s.status(r.Context()))
		return
	}
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	s.writeJSON(w, http.StatusOK, DaemonStatus{
		QueueDBPath: s.queue.Path(),
		Workflow:    WorkflowStatus{QueueStats: counts, StageHealth: []StageHealth{}},
	})
}

// ownedJob loads the {id} job, writing 404 when the caller may not see it.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	job, err := s.queue.GetByID(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	if job == nil || !canAccess(s.identity(r), job.UserID) {
		s.writeError(w, http.StatusNotFound, "job not found", "NotFoundError")
		return nil, false
	}
	return job, true
}
