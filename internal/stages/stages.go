package stages

import (
	"context"
	"log/slog"
	"strings"

	"echvid/internal/accounts"
	"echvid/internal/composite"
	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
	"echvid/internal/transcribe"
)

// Extractor pulls the audio track out of a video.
type Extractor interface {
	Extract(ctx context.Context, videoPath, audioPath string) error
}

// RecognizerSource yields the process-wide recognizer.
type RecognizerSource interface {
	Get() (transcribe.Recognizer, error)
}

// TextTranslator renders text in a target language.
type TextTranslator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// SpeechSynthesizer renders text to MP3 bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language, gender string) ([]byte, error)
}

// VideoCompositor writes the final video.
type VideoCompositor interface {
	Compose(ctx context.Context, req composite.Request) (composite.Result, error)
}

// PlanReader looks up a user's plan.
type PlanReader interface {
	GetPlan(ctx context.Context, userID int64) (accounts.Plan, error)
}

type base struct {
	name   string
	store  *mediastore.Store
	logger *slog.Logger
}

func newBase(name string, store *mediastore.Store, logger *slog.Logger) base {
	return base{name: name, store: store, logger: logging.NewComponentLogger(logger, name)}
}

func (b base) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, b.logger)
}

func (b base) Prepare(_ context.Context, job *queue.Job) error {
	if job == nil || strings.TrimSpace(job.Filename) == "" {
		return services.Wrap(services.ErrValidation, b.name, "prepare", "Job has no filename", nil)
	}
	if b.store == nil {
		return services.Wrap(services.ErrConfiguration, b.name, "prepare", "Media store unavailable", nil)
	}
	return nil
}
