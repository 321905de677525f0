package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"echvid/internal/config"
	"echvid/internal/services"
	"echvid/internal/services/remote"
)

// Recognizer converts an audio file into text. An empty language hint asks
// the service to auto-detect.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, languageHint string) (string, error)
}

// WhisperClient talks to an OpenAI-compatible transcription endpoint.
type WhisperClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *remote.Client
}

// NewWhisperClient builds a client from the transcription config section.
// Each call uploads once; redelivery of a failed transcription belongs to the
// workflow manager.
func NewWhisperClient(cfg config.Transcription, opts ...remote.Option) *WhisperClient {
	opts = append([]remote.Option{remote.WithRetryMaxAttempts(1)}, opts...)
	return &WhisperClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		client:  remote.NewClient("whisper", cfg.TimeoutSeconds, opts...),
	}
}

// Transcribe uploads the whole audio file in one request.
func (w *WhisperClient) Transcribe(ctx context.Context, audioPath, languageHint string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "transcribe", "read audio", "Extracted audio is missing", err)
	}
	body, contentType, err := w.multipartBody(filepath.Base(audioPath), audio, languageHint)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "encode request", "Failed to build recognition request", err)
	}
	endpoint := w.baseURL + "/audio/transcriptions"

	resp, err := w.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if w.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+w.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "recognize", "Speech recognition failed", err)
	}
	return strings.TrimSpace(string(resp)), nil
}

func (w *WhisperClient) multipartBody(name string, audio []byte, languageHint string) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, "", err
	}
	fields := map[string]string{
		"model":           w.model,
		"response_format": "text",
	}
	if hint := strings.TrimSpace(languageHint); hint != "" {
		fields["language"] = hint
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// Shared lazily constructs one Recognizer for the lifetime of the process.
// The first Get call runs the factory; later calls return the same instance
// or the same construction error.
type Shared struct {
	once    sync.Once
	factory func() (Recognizer, error)
	rec     Recognizer
	err     error
	loaded  atomic.Bool
}

// NewShared wraps factory.
func NewShared(factory func() (Recognizer, error)) *Shared {
	return &Shared{factory: factory}
}

// SharedFromConfig returns a Shared that builds the configured provider.
func SharedFromConfig(cfg *config.Config) *Shared {
	return NewShared(func() (Recognizer, error) {
		if cfg == nil {
			return nil, services.Wrap(services.ErrConfiguration, "transcribe", "init", "Configuration unavailable", nil)
		}
		switch cfg.Transcription.Provider {
		case "whisper":
			return NewWhisperClient(cfg.Transcription), nil
		default:
			return nil, services.Wrap(services.ErrConfiguration, "transcribe", "init",
				fmt.Sprintf("Unsupported transcription provider %q", cfg.Transcription.Provider), nil)
		}
	})
}

// Get returns the process-wide Recognizer.
func (s *Shared) Get() (Recognizer, error) {
	s.once.Do(func() {
		if s.factory == nil {
			s.err = errors.New("transcribe: no recognizer factory")
			return
		}
		s.rec, s.err = s.factory()
		s.loaded.Store(true)
	})
	return s.rec, s.err
}

// Loaded reports whether the Recognizer has been constructed.
func (s *Shared) Loaded() bool {
	return s.loaded.Load()
}
