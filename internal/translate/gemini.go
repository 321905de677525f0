package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"echvid/internal/config"
	"echvid/internal/services"
)

// GeminiEngine translates with Google Gemini through the generative-ai-go SDK.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine dials the Gemini API. A configured base_url overrides the
// SDK endpoint.
func NewGeminiEngine(ctx context.Context, cfg config.Translation) (*GeminiEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "gemini", "Gemini API key is required", nil)
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if endpoint := strings.TrimSpace(cfg.BaseURL); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "gemini", "Failed to create Gemini client", err)
	}
	return &GeminiEngine{client: client, model: cfg.Model}, nil
}

func (g *GeminiEngine) Name() string { return "gemini" }

func (g *GeminiEngine) Translate(ctx context.Context, text, _, target string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(fmt.Sprintf(translationPrompt, target)))

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		if geminiTransient(err) {
			return "", services.Transient(fmt.Errorf("gemini: %w", err))
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	return extractGeminiText(resp)
}

// Close releases the SDK connection.
func (g *GeminiEngine) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func geminiTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("gemini: no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("gemini: no text parts in response")
	}
	return strings.TrimSpace(strings.Join(parts, "")), nil
}
