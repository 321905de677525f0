package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echvid/internal/accounts"
	"echvid/internal/composite"
	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
	"echvid/internal/stages"
	"echvid/internal/synthesize"
	"echvid/internal/transcribe"
)

const spokenText = "Hello there. How are you?"

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) Transcribe(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type fakeVoice struct {
	mu      sync.Mutex
	locales []string
}

func (f *fakeVoice) Synthesize(_ context.Context, text, locale string, _ synthesize.Gender) ([]byte, error) {
	f.mu.Lock()
	f.locales = append(f.locales, locale)
	f.mu.Unlock()
	return []byte("mp3:" + locale + ":" + text), nil
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRunner) Run(_ context.Context, _ string, args []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, strings.Join(args, " "))
	r.mu.Unlock()
	return os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
}

func (r *recordingRunner) trace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.calls, "\n")
}

type planTable map[int64]accounts.Plan

func (p planTable) GetPlan(_ context.Context, id int64) (accounts.Plan, error) {
	if plan, ok := p[id]; ok {
		return plan, nil
	}
	return accounts.PlanFree, nil
}

type failingPlans struct{}

func (failingPlans) GetPlan(context.Context, int64) (accounts.Plan, error) {
	return "", errors.New("database is locked")
}

type countingTranslator struct {
	calls int
	out   string
}

func (c *countingTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	c.calls++
	if c.out != "" || text == "" {
		return c.out, nil
	}
	return strings.ToUpper(text), nil
}

func newMedia(t *testing.T) *mediastore.Store {
	t.Helper()
	store, err := mediastore.New(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)
	return store
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// stubExtractor runs the real ffmpeg extraction against shell stubs.
func stubExtractor(t *testing.T) transcribe.Extractor {
	t.Helper()
	dir := t.TempDir()
	return transcribe.Extractor{
		FFmpeg:  writeScript(t, dir, "ffmpeg", "for a; do last=$a; done\nprintf 'RIFFwave' > \"$last\"\n"),
		FFprobe: writeScript(t, dir, "ffprobe", "echo '{\"streams\":[{\"codec_type\":\"video\"},{\"codec_type\":\"audio\"}],\"format\":{\"duration\":\"10\"}}'\n"),
	}
}

func TestPrepareRequiresFilename(t *testing.T) {
	stage := stages.NewTranslate(newMedia(t), &countingTranslator{}, logging.NewNop())
	err := stage.Prepare(context.Background(), &queue.Job{})
	require.Error(t, err)
	assert.Equal(t, "ValidationError", services.Kind(err))
}

func TestExtractWritesAudioArtifact(t *testing.T) {
	media := newMedia(t)
	source, _, err := media.SaveUpload("talk.mp4", strings.NewReader("video"))
	require.NoError(t, err)

	stage := stages.NewExtract(media, stubExtractor(t), logging.NewNop())
	job := &queue.Job{Filename: "talk.mp4", SourcePath: source}
	require.NoError(t, stage.Execute(context.Background(), job))

	assert.Equal(t, media.Path(mediastore.KindAudio, "talk.mp4"), job.AudioPath)
	assert.True(t, strings.HasSuffix(job.AudioPath, filepath.Join("audio", "talk.mp4_audio.wav")))
	assert.FileExists(t, job.AudioPath)
}

func TestExtractHealthReportsMissingBinary(t *testing.T) {
	stage := stages.NewExtract(newMedia(t), stubExtractor(t), logging.NewNop(), "echvid-missing-binary")
	health := stage.HealthCheck(context.Background())
	assert.False(t, health.Ready)
	assert.Contains(t, health.Detail, "echvid-missing-binary")
}

func TestTranscribeRequiresExtractedAudio(t *testing.T) {
	media := newMedia(t)
	shared := transcribe.NewShared(func() (transcribe.Recognizer, error) {
		return fakeRecognizer{text: spokenText}, nil
	})
	stage := stages.NewTranscribe(media, shared, logging.NewNop())

	err := stage.Execute(context.Background(), &queue.Job{Filename: "talk.mp4"})
	require.Error(t, err)
	assert.Equal(t, "StorageError", services.Kind(err))
	assert.False(t, media.Exists(mediastore.KindTranscript, "talk.mp4"))
	assert.False(t, shared.Loaded(), "recognizer must not load for a job that cannot run")
}

func TestTranscribeWritesTranscript(t *testing.T) {
	media := newMedia(t)
	_, err := media.WriteBytes(mediastore.KindAudio, "talk.mp4", []byte("RIFF"))
	require.NoError(t, err)
	shared := transcribe.NewShared(func() (transcribe.Recognizer, error) {
		return fakeRecognizer{text: "  " + spokenText + "\n"}, nil
	})

	job := &queue.Job{Filename: "talk.mp4"}
	require.NoError(t, stages.NewTranscribe(media, shared, logging.NewNop()).Execute(context.Background(), job))

	text, err := media.ReadText(mediastore.KindTranscript, "talk.mp4")
	require.NoError(t, err)
	assert.Equal(t, spokenText, text)
	assert.Equal(t, media.Path(mediastore.KindTranscript, "talk.mp4"), job.TranscriptPath)
}

func TestTranscribeRecognizerFailureWritesNothing(t *testing.T) {
	media := newMedia(t)
	_, err := media.WriteBytes(mediastore.KindAudio, "talk.mp4", []byte("RIFF"))
	require.NoError(t, err)
	shared := transcribe.NewShared(func() (transcribe.Recognizer, error) {
		return fakeRecognizer{err: services.Wrap(services.ErrTranscription, "transcribe", "request", "Unsupported format", nil)}, nil
	})

	err = stages.NewTranscribe(media, shared, logging.NewNop()).Execute(context.Background(), &queue.Job{Filename: "talk.mp4"})
	require.Error(t, err)
	assert.Equal(t, "TranscriptionError", services.Kind(err))
	assert.False(t, media.Exists(mediastore.KindTranscript, "talk.mp4"))
}

func TestTranslateRerunOverwritesDeterministically(t *testing.T) {
	media := newMedia(t)
	_, err := media.WriteText(mediastore.KindTranscript, "talk.mp4", spokenText)
	require.NoError(t, err)
	translator := &countingTranslator{}
	stage := stages.NewTranslate(media, translator, logging.NewNop())
	job := &queue.Job{Filename: "talk.mp4", TranslationLang: "fr"}

	require.NoError(t, stage.Execute(context.Background(), job))
	first, err := os.ReadFile(job.TranslatedPath)
	require.NoError(t, err)

	require.NoError(t, stage.Execute(context.Background(), job))
	second, err := os.ReadFile(job.TranslatedPath)
	require.NoError(t, err)

	assert.Equal(t, 2, translator.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, strings.ToUpper(spokenText), string(second))
	entries, err := os.ReadDir(media.Dir(mediastore.KindTranslated))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "transcript and translation only; no temp files left behind")
}

func TestTranslateEmptyResultFails(t *testing.T) {
	media := newMedia(t)
	_, err := media.WriteText(mediastore.KindTranscript, "talk.mp4", "")
	require.NoError(t, err)
	stage := stages.NewTranslate(media, &countingTranslator{}, logging.NewNop())

	err = stage.Execute(context.Background(), &queue.Job{Filename: "talk.mp4", TranslationLang: "fr"})
	require.Error(t, err)
	assert.Equal(t, "TranslationError", services.Kind(err))
	assert.False(t, media.Exists(mediastore.KindTranslated, "talk.mp4"))
}

func TestSynthesizeVoicesTranslationLanguage(t *testing.T) {
	media := newMedia(t)
	_, err := media.WriteText(mediastore.KindTranslated, "talk.mp4", "Hallo.")
	require.NoError(t, err)
	voice := &fakeVoice{}
	stage := stages.NewSynthesize(media, synthesize.New(voice, 0, synthesize.GenderNeutral, logging.NewNop()), logging.NewNop())

	job := &queue.Job{Filename: "talk.mp4", TranslationLang: "de", TargetLang: "en"}
	require.NoError(t, stage.Execute(context.Background(), job))

	assert.Equal(t, []string{"de-DE"}, voice.locales, "voice follows the translated text, not target_lang")
	data, err := os.ReadFile(job.SpeechPath)
	require.NoError(t, err)
	assert.Equal(t, "mp3:de-DE:Hallo.", string(data))
	assert.True(t, strings.HasSuffix(job.SpeechPath, filepath.Join("speech", "talk.mp4_translated_audio.mp3")))
}

func TestVoiceLanguageIgnoresTargetLanguage(t *testing.T) {
	assert.Equal(t, "fr", stages.VoiceLanguage(&queue.Job{TranslationLang: "fr"}))
	assert.Equal(t, "fr", stages.VoiceLanguage(&queue.Job{TranslationLang: " fr ", TargetLang: "en"}))
}

func composeJob(t *testing.T, plans stages.PlanReader, userID int64, translated string) (*recordingRunner, *queue.Job) {
	t.Helper()
	media := newMedia(t)
	source, _, err := media.SaveUpload("talk.mp4", strings.NewReader("video"))
	require.NoError(t, err)
	_, err = media.WriteText(mediastore.KindTranslated, "talk.mp4", translated)
	require.NoError(t, err)
	_, err = media.WriteBytes(mediastore.KindSpeech, "talk.mp4", []byte("mp3"))
	require.NoError(t, err)

	runner := &recordingRunner{}
	compositor := composite.New("ffmpeg", composite.Style{}, runner, logging.NewNop())
	job := &queue.Job{Filename: "talk.mp4", SourcePath: source, UserID: userID}
	require.NoError(t, stages.NewComposite(media, compositor, plans, logging.NewNop()).Execute(context.Background(), job))
	assert.Equal(t, media.Path(mediastore.KindFinal, "talk.mp4"), job.OutputPath)
	return runner, job
}

func TestCompositeFreePlanCarriesWatermark(t *testing.T) {
	runner, _ := composeJob(t, planTable{1: accounts.PlanFree}, 1, "Bonjour.\nÇa va?")
	trace := runner.trace()
	assert.Contains(t, trace, "watermark.txt")
	assert.Contains(t, trace, "cue_0002.txt", "one cue per translated line")
}

func TestCompositeSingleLineTranslationIsOneCue(t *testing.T) {
	runner, _ := composeJob(t, planTable{1: accounts.PlanPremium}, 1, "Bonjour. Ça va? Au revoir.")
	trace := runner.trace()
	assert.Contains(t, trace, "cue_0001.txt")
	assert.NotContains(t, trace, "cue_0002.txt", "sentences on one line share a cue")
}

func TestCompositePremiumPlanHasNoWatermark(t *testing.T) {
	runner, job := composeJob(t, planTable{2: accounts.PlanPremium}, 2, "Bonjour.")
	assert.NotContains(t, runner.trace(), "watermark.txt")
	assert.FileExists(t, job.OutputPath)
}

func TestCompositePlanLookupFailureKeepsWatermark(t *testing.T) {
	runner, _ := composeJob(t, failingPlans{}, 3, "Bonjour.")
	assert.Contains(t, runner.trace(), "watermark.txt")
}
