package stages

import (
	"context"
	"io"
	"log/slog"

	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
	"echvid/internal/stage"
)

// Translate renders the transcript in the job's translation language and
// writes subtitles/{filename}_translated.txt. A rerun overwrites the file.
type Translate struct {
	base
	translator TextTranslator
}

// NewTranslate builds the translation stage.
func NewTranslate(store *mediastore.Store, translator TextTranslator, logger *slog.Logger) *Translate {
	return &Translate{base: newBase("translate", store, logger), translator: translator}
}

// Close releases the translator's connection, if any.
func (s *Translate) Close() error {
	if closer, ok := s.translator.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *Translate) Execute(ctx context.Context, job *queue.Job) error {
	transcript, err := s.store.ReadText(mediastore.KindTranscript, job.Filename)
	if err != nil {
		return err
	}
	job.SetProgress("Translating", "Translating to "+job.TranslationLang, 50)
	translated, err := s.translator.Translate(ctx, transcript, job.TranslationLang)
	if err != nil {
		return err
	}
	if translated == "" {
		return services.Wrap(services.ErrTranslation, s.name, "translate", "Transcript produced no translatable text", nil)
	}
	path, err := s.store.WriteText(mediastore.KindTranslated, job.Filename, translated)
	if err != nil {
		return err
	}
	job.TranslatedPath = path
	job.SetProgress("Translated", "Translation ready", 60)
	s.log(ctx).Info("translation written",
		logging.String("translated_path", path),
		logging.String("language", job.TranslationLang),
	)
	return nil
}

func (s *Translate) HealthCheck(context.Context) stage.Health {
	if s.translator == nil {
		return stage.Unhealthy(s.name, "translator not configured")
	}
	return stage.Healthy(s.name)
}
