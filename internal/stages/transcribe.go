package stages

import (
	"context"
	"log/slog"
	"strings"

	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
	"echvid/internal/stage"
)

// Transcribe recognizes speech in the extracted audio and writes
// subtitles/{filename}_transcript.txt.
type Transcribe struct {
	base
	recognizers RecognizerSource
}

// NewTranscribe builds the recognition stage.
func NewTranscribe(store *mediastore.Store, recognizers RecognizerSource, logger *slog.Logger) *Transcribe {
	return &Transcribe{base: newBase("transcribe", store, logger), recognizers: recognizers}
}

func (s *Transcribe) Execute(ctx context.Context, job *queue.Job) error {
	audio := s.store.Path(mediastore.KindAudio, job.Filename)
	if !s.store.Exists(mediastore.KindAudio, job.Filename) {
		return services.Wrap(services.ErrStorage, s.name, "read audio", "Extracted audio is missing", nil)
	}
	recognizer, err := s.recognizers.Get()
	if err != nil {
		return err
	}
	job.SetProgress("Transcribing", "Recognizing speech", 30)
	text, err := recognizer.Transcribe(ctx, audio, job.SourceLang)
	if err != nil {
		return err
	}
	path, err := s.store.WriteText(mediastore.KindTranscript, job.Filename, strings.TrimSpace(text))
	if err != nil {
		return err
	}
	job.TranscriptPath = path
	job.SetProgress("Transcribed", "Transcript ready", 40)
	s.log(ctx).Info("transcript written",
		logging.String("transcript_path", path),
		logging.Int("chars", len([]rune(text))),
	)
	return nil
}

func (s *Transcribe) HealthCheck(context.Context) stage.Health {
	if s.recognizers == nil {
		return stage.Unhealthy(s.name, "recognizer not configured")
	}
	return stage.Healthy(s.name)
}
