package stages

import (
	"context"
	"log/slog"
	"strings"

	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/stage"
)

// Synthesize voices the translated text and writes
// speech/{filename}_translated_audio.mp3.
type Synthesize struct {
	base
	synthesizer SpeechSynthesizer
}

// NewSynthesize builds the speech stage.
func NewSynthesize(store *mediastore.Store, synthesizer SpeechSynthesizer, logger *slog.Logger) *Synthesize {
	return &Synthesize{base: newBase("synthesize", store, logger), synthesizer: synthesizer}
}

// VoiceLanguage is the language the translated text is written in. The
// submitted target_lang is recorded on the job but never picks the voice.
func VoiceLanguage(job *queue.Job) string {
	return strings.TrimSpace(job.TranslationLang)
}

func (s *Synthesize) Execute(ctx context.Context, job *queue.Job) error {
	text, err := s.store.ReadText(mediastore.KindTranslated, job.Filename)
	if err != nil {
		return err
	}
	lang := VoiceLanguage(job)
	job.SetProgress("Synthesizing", "Generating "+lang+" speech", 70)
	audio, err := s.synthesizer.Synthesize(ctx, text, lang, "")
	if err != nil {
		return err
	}
	path, err := s.store.WriteBytes(mediastore.KindSpeech, job.Filename, audio)
	if err != nil {
		return err
	}
	job.SpeechPath = path
	job.SetProgress("Synthesized", "Speech track ready", 80)
	s.log(ctx).Info("speech written",
		logging.String("speech_path", path),
		logging.String("language", lang),
		logging.Int("bytes", len(audio)),
	)
	return nil
}

func (s *Synthesize) HealthCheck(context.Context) stage.Health {
	if s.synthesizer == nil {
		return stage.Unhealthy(s.name, "synthesizer not configured")
	}
	return stage.Healthy(s.name)
}
