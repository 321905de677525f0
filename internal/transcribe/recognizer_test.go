package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echvid/internal/config"
	"echvid/internal/services"
	"echvid/internal/services/remote"
)

func TestWhisperClientPostsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "text", r.FormValue("response_format"))
		assert.Equal(t, "en", r.FormValue("language"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "a.wav", header.Filename)
		assert.Equal(t, "RIFF", string(data))
		_, _ = w.Write([]byte(" Hello world. \n"))
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	client := NewWhisperClient(config.Transcription{BaseURL: server.URL + "/v1", APIKey: "key", Model: "whisper-1"})
	text, err := client.Transcribe(context.Background(), audio, "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", text)
}

func TestWhisperClientOmitsEmptyLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["language"]
		assert.False(t, present)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))
	client := NewWhisperClient(config.Transcription{BaseURL: server.URL, Model: "m"})
	_, err := client.Transcribe(context.Background(), audio, "")
	require.NoError(t, err)
}

func TestWhisperClientFailureIsTranscriptionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))
	client := NewWhisperClient(config.Transcription{BaseURL: server.URL, Model: "m"})
	_, err := client.Transcribe(context.Background(), audio, "")
	require.Error(t, err)
	assert.Equal(t, "TranscriptionError", services.Kind(err))
	assert.True(t, services.IsTransient(err))
}

func TestWhisperClientUnavailablePostsOncePerCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))
	client := NewWhisperClient(
		config.Transcription{BaseURL: server.URL, Model: "m"},
		remote.WithSleeper(func(time.Duration) { t.Fatal("whisper upload must not back off and retry") }),
	)
	_, err := client.Transcribe(context.Background(), audio, "")
	require.Error(t, err)
	assert.True(t, services.IsTransient(err), "the workflow redelivers the stage")
	assert.EqualValues(t, 1, calls.Load())

	_, err = client.Transcribe(context.Background(), audio, "")
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

type staticRecognizer struct{}

func (staticRecognizer) Transcribe(context.Context, string, string) (string, error) {
	return "text", nil
}

func TestSharedBuildsOnce(t *testing.T) {
	var built atomic.Int32
	shared := NewShared(func() (Recognizer, error) {
		built.Add(1)
		return staticRecognizer{}, nil
	})
	assert.False(t, shared.Loaded())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := shared.Get()
			assert.NoError(t, err)
			assert.NotNil(t, rec)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, built.Load())
	assert.True(t, shared.Loaded())
}

func TestSharedKeepsFactoryError(t *testing.T) {
	boom := errors.New("boom")
	shared := NewShared(func() (Recognizer, error) { return nil, boom })
	_, err := shared.Get()
	assert.ErrorIs(t, err, boom)
	_, err = shared.Get()
	assert.ErrorIs(t, err, boom)
}

func TestSharedFromConfigRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Provider = "mystery"
	_, err := SharedFromConfig(&cfg).Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConfiguration))
}
