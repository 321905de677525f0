package stages

import (
	"context"
	"log/slog"

	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/stage"
)

// Extract writes audio/{filename}_audio.wav from the source video.
type Extract struct {
	base
	extractor Extractor
	binaries  []string
}

// NewExtract builds the extraction stage. binaries are checked on PATH by
// HealthCheck.
func NewExtract(store *mediastore.Store, extractor Extractor, logger *slog.Logger, binaries ...string) *Extract {
	return &Extract{base: newBase("extract", store, logger), extractor: extractor, binaries: binaries}
}

func (s *Extract) Execute(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Extracting audio", "Extracting the audio track", 10)
	dst := s.store.Path(mediastore.KindAudio, job.Filename)
	if err := s.extractor.Extract(ctx, job.SourcePath, dst); err != nil {
		return err
	}
	job.AudioPath = dst
	job.SetProgress("Audio extracted", "Audio track extracted", 20)
	s.log(ctx).Info("audio extracted", logging.String("audio_path", dst))
	return nil
}

func (s *Extract) HealthCheck(context.Context) stage.Health {
	if s.extractor == nil {
		return stage.Unhealthy(s.name, "extractor not configured")
	}
	return stage.RequireBinaries(s.name, s.binaries...)
}
