package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"echvid/internal/logging"
	"echvid/internal/media/ffprobe"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
)

// ErrFilenameTaken reports that a fetched video would replace a file owned by
// another account or still used by an active job.
var ErrFilenameTaken = errors.New("filename taken")

// MediaRecorder persists acquired media metadata and answers who holds a
// filename.
type MediaRecorder interface {
	RecordMedia(ctx context.Context, media queue.Media) (*queue.Media, error)
	GetMedia(ctx context.Context, filename string) (*queue.Media, error)
	FindActiveByFilename(ctx context.Context, filename string) (*queue.Job, error)
}

// Result describes an acquired source video.
type Result struct {
	Filename string
	Path     string
	Duration string
	Size     int64
}

// Acquirer writes source videos into the media store.
type Acquirer struct {
	store      *mediastore.Store
	recorder   MediaRecorder
	downloader Downloader
	ffprobe    string
	logger     *slog.Logger
}

// New constructs an Acquirer. recorder may be nil when metadata is not
// tracked (CLI one-shots).
func New(store *mediastore.Store, recorder MediaRecorder, downloader Downloader, ffprobeBinary string, logger *slog.Logger) *Acquirer {
	if downloader == nil {
		downloader = YTDLP{}
	}
	return &Acquirer{
		store:      store,
		recorder:   recorder,
		downloader: downloader,
		ffprobe:    ffprobeBinary,
		logger:     logging.NewComponentLogger(logger, "acquire"),
	}
}

// Upload stores body under the sanitized form of name.
func (a *Acquirer) Upload(ctx context.Context, name string, userID int64, body io.Reader) (Result, error) {
	filename, err := mediastore.SanitizeFilename(name)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "acquire", "upload", "Upload filename is empty or unsafe", err)
	}
	path, size, err := a.store.SaveUpload(filename, body)
	if err != nil {
		return Result{}, err
	}
	res := Result{Filename: filename, Path: path, Size: size}
	res.Duration = ffprobe.ProbeDuration(ctx, a.ffprobe, path)
	if err := a.record(ctx, res, userID, "upload", ""); err != nil {
		return Result{}, err
	}
	a.logger.Info("video uploaded",
		logging.String("filename", filename),
		logging.Int64("size_bytes", size),
		logging.String("duration", res.Duration),
		logging.String(logging.FieldEventType, "acquire_complete"),
	)
	return res, nil
}

// Fetch downloads rawURL into uploads/ and returns the normalized result.
// The download lands in a private staging directory and only replaces an
// existing upload the caller owns and no active job is reading.
func (a *Acquirer) Fetch(ctx context.Context, rawURL string, userID int64) (Result, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		return Result{}, services.Wrap(services.ErrAcquisition, "acquire", "fetch", "Unsupported video URL", err)
	}
	a.logger.Info("fetching video", logging.String("url", target), logging.String(logging.FieldEventType, "acquire_start"))

	staging, err := os.MkdirTemp(a.store.Dir(mediastore.KindUpload), ".fetch-")
	if err != nil {
		return Result{}, services.Wrap(services.ErrStorage, "acquire", "fetch", "Failed to prepare download directory", err)
	}
	defer os.RemoveAll(staging)

	downloaded, err := a.downloader.Download(ctx, target, staging)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, services.Wrap(services.ErrCanceled, "acquire", "fetch", "Download canceled", err)
		}
		return Result{}, services.Wrap(services.ErrAcquisition, "acquire", "fetch", "Failed to download video", err)
	}

	res, err := a.normalize(ctx, downloaded, userID)
	if err != nil {
		return Result{}, err
	}
	res.Duration = ffprobe.ProbeDuration(ctx, a.ffprobe, res.Path)
	if err := a.record(ctx, res, userID, "url", target); err != nil {
		return Result{}, err
	}
	a.logger.Info("video fetched",
		logging.String("filename", res.Filename),
		logging.String("duration", res.Duration),
		logging.String(logging.FieldEventType, "acquire_complete"),
	)
	return res, nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("scheme %q not supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("url has no host")
	}
	return parsed.String(), nil
}

// normalize moves the downloaded file to its sanitized name inside uploads/.
func (a *Acquirer) normalize(ctx context.Context, downloaded string, userID int64) (Result, error) {
	info, err := os.Stat(downloaded)
	if err != nil || !info.Mode().IsRegular() {
		if err == nil {
			err = errors.New("not a regular file")
		}
		return Result{}, services.Wrap(services.ErrAcquisition, "acquire", "fetch", "Downloader produced no video file", err)
	}
	base := filepath.Base(downloaded)
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".mp4") {
		base = strings.TrimSuffix(base, ext) + ".mp4"
	}
	filename, err := mediastore.SanitizeFilename(base)
	if err != nil {
		return Result{}, services.Wrap(services.ErrAcquisition, "acquire", "fetch", "Downloaded file name is unusable", err)
	}
	if err := a.ensureReplaceable(ctx, filename, userID); err != nil {
		return Result{}, err
	}
	dest := a.store.Path(mediastore.KindUpload, filename)
	if dest != downloaded {
		if err := os.Rename(downloaded, dest); err != nil {
			return Result{}, services.Wrap(services.ErrStorage, "acquire", "fetch", "Failed to move downloaded video", err)
		}
	}
	return Result{Filename: filename, Path: dest, Size: info.Size()}, nil
}

func (a *Acquirer) ensureReplaceable(ctx context.Context, filename string, userID int64) error {
	if a.recorder == nil {
		return nil
	}
	active, err := a.recorder.FindActiveByFilename(ctx, filename)
	if err != nil {
		return services.Wrap(services.ErrStorage, "acquire", "fetch", "Failed to check active jobs", err)
	}
	if active != nil {
		return services.Wrap(services.ErrAcquisition, "acquire", "fetch",
			fmt.Sprintf("%s is being processed by job %s", filename, active.ID), ErrFilenameTaken)
	}
	existing, err := a.recorder.GetMedia(ctx, filename)
	if err != nil {
		return services.Wrap(services.ErrStorage, "acquire", "fetch", "Failed to look up existing video", err)
	}
	if existing != nil && existing.UserID != userID {
		return services.Wrap(services.ErrAcquisition, "acquire", "fetch",
			filename+" belongs to another account", ErrFilenameTaken)
	}
	return nil
}

func (a *Acquirer) record(ctx context.Context, res Result, userID int64, source, sourceURL string) error {
	if a.recorder == nil {
		return nil
	}
	if _, err := a.recorder.RecordMedia(ctx, queue.Media{
		Filename:  res.Filename,
		UserID:    userID,
		Title:     res.Filename,
		Source:    source,
		SourceURL: sourceURL,
		Duration:  res.Duration,
	}); err != nil {
		return services.Wrap(services.ErrStorage, "acquire", "record media", "Failed to record video metadata", err)
	}
	return nil
}
