package synthesize

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"echvid/internal/config"
	"echvid/internal/logging"
	"echvid/internal/services"
	"echvid/internal/services/remote"
	"echvid/internal/translate"
)

// DefaultMaxInputChars is the per-request text budget.
const DefaultMaxInputChars = 4500

// Engine renders one bounded chunk of text to MP3 bytes.
type Engine interface {
	Synthesize(ctx context.Context, text, locale string, gender Gender) ([]byte, error)
}

// Synthesizer resolves voices and segments oversize text for an Engine.
type Synthesizer struct {
	engine        Engine
	maxInputChars int
	defaultGender Gender
	logger        *slog.Logger
}

// New builds a Synthesizer. maxInputChars <= 0 selects DefaultMaxInputChars.
func New(engine Engine, maxInputChars int, defaultGender Gender, logger *slog.Logger) *Synthesizer {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	if defaultGender == "" {
		defaultGender = GenderNeutral
	}
	return &Synthesizer{
		engine:        engine,
		maxInputChars: maxInputChars,
		defaultGender: defaultGender,
		logger:        logging.NewComponentLogger(logger, "synthesize"),
	}
}

// FromConfig builds a Synthesizer backed by the configured engine.
func FromConfig(cfg *config.Config, logger *slog.Logger, opts ...remote.Option) (*Synthesizer, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "init", "Configuration unavailable", nil)
	}
	gender, err := ParseGender(cfg.Synthesis.DefaultGender)
	if err != nil {
		return nil, err
	}
	switch cfg.Synthesis.Provider {
	case "google":
		engine := NewGoogleEngine(cfg.Synthesis, opts...)
		return New(engine, cfg.Synthesis.MaxInputChars, gender, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "init",
			fmt.Sprintf("Unsupported synthesis provider %q", cfg.Synthesis.Provider), nil)
	}
}

// Synthesize returns the MP3 rendering of text in language. A blank gender
// uses the configured default.
func (s *Synthesizer) Synthesize(ctx context.Context, text, language, gender string) ([]byte, error) {
	if s.engine == nil {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "init", "No synthesis engine configured", nil)
	}
	locale, err := VoiceLocale(language)
	if err != nil {
		return nil, err
	}
	voice := s.defaultGender
	if strings.TrimSpace(gender) != "" {
		if voice, err = ParseGender(gender); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "validate", "No text to synthesize", nil)
	}

	segments := translate.Segment(text, s.maxInputChars)
	var out bytes.Buffer
	for i, segment := range segments {
		chunk := strings.TrimSpace(segment)
		if chunk == "" {
			continue
		}
		audio, err := s.engine.Synthesize(ctx, chunk, locale, voice)
		if err != nil {
			return nil, services.Wrap(services.ErrSynthesis, "synthesize", "render",
				fmt.Sprintf("Segment %d of %d failed", i+1, len(segments)), err)
		}
		out.Write(audio)
	}
	if out.Len() == 0 {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "render", "Synthesis returned no audio", nil)
	}
	s.logger.Debug("speech synthesized",
		logging.String("locale", locale),
		logging.String("gender", string(voice)),
		logging.Int("segments", len(segments)),
		logging.Int("bytes", out.Len()),
	)
	return out.Bytes(), nil
}

// GoogleEngine calls the Cloud Text-to-Speech v1 REST API.
type GoogleEngine struct {
	endpoint string
	apiKey   string
	client   *remote.Client
}

// NewGoogleEngine builds a Text-to-Speech engine.
func NewGoogleEngine(cfg config.Synthesis, opts ...remote.Option) *GoogleEngine {
	return &GoogleEngine{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/text:synthesize",
		apiKey:   cfg.APIKey,
		client:   remote.NewClient("google-tts", cfg.TimeoutSeconds, opts...),
	}
}

type ttsRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		SSMLGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
}

func (g *GoogleEngine) Synthesize(ctx context.Context, text, locale string, gender Gender) ([]byte, error) {
	var req ttsRequest
	req.Input.Text = text
	req.Voice.LanguageCode = locale
	req.Voice.SSMLGender = string(gender)
	req.AudioConfig.AudioEncoding = "MP3"

	endpoint := g.endpoint
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}
	var resp ttsResponse
	if err := g.client.PostJSON(ctx, endpoint, nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.AudioContent == "" {
		return nil, fmt.Errorf("google-tts: empty audioContent")
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google-tts: decode audioContent: %w", err)
	}
	return audio, nil
}
