package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
)

const finalSuffix = "_final.mp4"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := int64(s.cfg.API.MaxUploadMB) << 20; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "upload", "Expected a multipart form", err))
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "upload", "Malformed multipart body", err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		s.storeUpload(w, r, part.FileName(), part)
		_ = part.Close()
		return
	}
	s.writeError(w, http.StatusBadRequest, "No file uploaded", "ValidationError")
}

func (s *Server) storeUpload(w http.ResponseWriter, r *http.Request, name string, body io.Reader) {
	ctx := r.Context()
	if filename, err := mediastore.SanitizeFilename(name); err == nil {
		active, err := s.queue.FindActiveByFilename(ctx, filename)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if active != nil {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("%s is being processed by job %s", filename, active.ID), "ConflictError")
			return
		}
		existing, err := s.queue.GetMedia(ctx, filename)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if existing != nil && !canAccess(s.identity(r), existing.UserID) {
			s.writeError(w, http.StatusConflict, filename+" belongs to another account; rename the file", "ConflictError")
			return
		}
	}
	res, err := s.acquirer.Upload(ctx, name, s.identity(r).UserID, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AcquireResponse{
		Message:  "Uploaded",
		Filename: res.Filename,
		Duration: res.Duration,
		Size:     res.Size,
	})
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.acquirer.Fetch(r.Context(), req.VideoURL, s.identity(r).UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AcquireResponse{
		Message:  "Downloaded",
		Filename: res.Filename,
		Duration: res.Duration,
		Size:     res.Size,
	})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	id := s.identity(r)
	owner := id.UserID
	if id.IsAdmin() && r.URL.Query().Get("all") == "true" {
		owner = 0
	}
	media, err := s.queue.ListMedia(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]MediaView, 0, len(media))
	for _, m := range media {
		out = append(out, FromMedia(m))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCountVideos(w http.ResponseWriter, r *http.Request) {
	count, err := s.queue.CountMedia(r.Context(), s.identity(r).UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleDeleteVideo removes a video and every artifact derived from it.
func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filename, ok := s.ownedMedia(w, r, chi.URLParam(r, "filename"))
	if !ok {
		return
	}
	active, err := s.queue.FindActiveByFilename(ctx, filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if active != nil {
		s.writeError(w, http.StatusConflict, "video has an active job; cancel it first", "ConflictError")
		return
	}
	removed, err := s.media.Remove(filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := s.queue.RemoveMedia(ctx, filename); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Video deleted", "removed": len(removed)})
}

// handleOutput streams a finished video. The path segment may be the job
// key or the final artifact name.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(chi.URLParam(r, "filename"), finalSuffix)
	filename, err := mediastore.SanitizeFilename(name)
	if err != nil || filename != name {
		s.writeError(w, http.StatusNotFound, "video not found", "NotFoundError")
		return
	}
	job, err := s.queue.LatestByFilename(r.Context(), filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if job == nil || !canAccess(s.identity(r), job.UserID) || !s.media.Exists(mediastore.KindFinal, filename) {
		s.writeError(w, http.StatusNotFound, "video not found", "NotFoundError")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename + finalSuffix}))
	http.ServeFile(w, r, s.media.Path(mediastore.KindFinal, filename))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	active, err := s.queue.List(r.Context(), queue.ListFilter{Statuses: activeStatuses()})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if len(active) > 0 {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("%d jobs are still active", len(active)), "ConflictError")
		return
	}
	removed, err := s.media.Cleanup(mediastore.IntermediateKinds()...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Temporary files cleaned", "removed": removed})
}

// ownedMedia resolves a filename the caller may manage, writing 404 otherwise.
func (s *Server) ownedMedia(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	filename, err := mediastore.SanitizeFilename(raw)
	if err != nil || filename != raw {
		s.writeError(w, http.StatusNotFound, "video not found", "NotFoundError")
		return "", false
	}
	media, err := s.queue.GetMedia(r.Context(), filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", false
	}
	if media == nil || !canAccess(s.identity(r), media.UserID) {
		s.writeError(w, http.StatusNotFound, "video not found", "NotFoundError")
		return "", false
	}
	return filename, true
}

func activeStatuses() []queue.Status {
	var out []queue.Status
	for _, status := range queue.AllStatuses() {
		if !queue.IsTerminalStatus(status) {
			out = append(out, status)
		}
	}
	return out
}
