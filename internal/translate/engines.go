package translate

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"echvid/internal/config"
	"echvid/internal/services"
	"echvid/internal/services/remote"
)

// NewEngine builds the engine named by cfg.Provider.
func NewEngine(ctx context.Context, cfg config.Translation, opts ...remote.Option) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "google":
		return NewGoogleEngine(cfg, opts...), nil
	case "deepl":
		return NewDeepLEngine(cfg, opts...), nil
	case "openai":
		return NewOpenAIEngine(cfg, opts...), nil
	case "gemini":
		engine, err := NewGeminiEngine(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "echo":
		return EchoEngine{}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "translate", "init",
			fmt.Sprintf("Unsupported translation provider %q", cfg.Provider), nil)
	}
}

// FromConfig builds a Translator with the configured engine, budget and throttle.
func FromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Translator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "init", "Configuration unavailable", nil)
	}
	engine, err := NewEngine(ctx, cfg.Translation)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithBudget(cfg.Translation.SegmentChars),
		WithThrottle(cfg.Translation.Throttle()),
	}
	return NewTranslator(engine, append(base, opts...)...), nil
}

// EchoEngine returns its input unchanged.
type EchoEngine struct{}

func (EchoEngine) Name() string { return "echo" }

func (EchoEngine) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

// GoogleEngine calls the Cloud Translation v2 REST API.
type GoogleEngine struct {
	endpoint string
	apiKey   string
	client   *remote.Client
}

// NewGoogleEngine builds a Google engine.
func NewGoogleEngine(cfg config.Translation, opts ...remote.Option) *GoogleEngine {
	return &GoogleEngine{
		endpoint: cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   remote.NewClient("google-translate", cfg.TimeoutSeconds, opts...),
	}
}

func (g *GoogleEngine) Name() string { return "google" }

type googleRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

func (g *GoogleEngine) Translate(ctx context.Context, text, source, target string) (string, error) {
	endpoint := g.endpoint
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}
	var resp googleResponse
	err := g.client.PostJSON(ctx, endpoint, nil, googleRequest{
		Q:      []string{text},
		Source: source,
		Target: target,
		Format: "text",
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Data.Translations) == 0 {
		return "", fmt.Errorf("google-translate: empty translations")
	}
	return resp.Data.Translations[0].TranslatedText, nil
}

// DeepLEngine calls the DeepL v2 translate API.
type DeepLEngine struct {
	endpoint string
	apiKey   string
	client   *remote.Client
}

// NewDeepLEngine builds a DeepL engine.
func NewDeepLEngine(cfg config.Translation, opts ...remote.Option) *DeepLEngine {
	return &DeepLEngine{
		endpoint: cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   remote.NewClient("deepl", cfg.TimeoutSeconds, opts...),
	}
}

func (d *DeepLEngine) Name() string { return "deepl" }

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

func (d *DeepLEngine) Translate(ctx context.Context, text, source, target string) (string, error) {
	var resp deeplResponse
	headers := map[string]string{"Authorization": "DeepL-Auth-Key " + d.apiKey}
	err := d.client.PostJSON(ctx, d.endpoint, headers, deeplRequest{
		Text:       []string{text},
		SourceLang: strings.ToUpper(source),
		TargetLang: strings.ToUpper(target),
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("deepl: empty translations")
	}
	return resp.Translations[0].Text, nil
}
