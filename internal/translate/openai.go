package translate

import (
	"context"
	"fmt"
	"strings"

	"echvid/internal/config"
	"echvid/internal/services/remote"
)

const translationPrompt = "You are a professional subtitle translator. Translate the user's text into the language with code %q. " +
	"Preserve sentence order and meaning. Reply with the translation only, without commentary or quotes."

// OpenAIEngine translates with an OpenAI-compatible chat completions API.
type OpenAIEngine struct {
	endpoint string
	apiKey   string
	model    string
	client   *remote.Client
}

// NewOpenAIEngine builds a chat completions engine.
func NewOpenAIEngine(cfg config.Translation, opts ...remote.Option) *OpenAIEngine {
	return &OpenAIEngine{
		endpoint: cfg.BaseURL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   remote.NewClient("openai", cfg.TimeoutSeconds, opts...),
	}
}

func (o *OpenAIEngine) Name() string { return "openai" }

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		Text         string      `json:"text"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAIEngine) Translate(ctx context.Context, text, _, target string) (string, error) {
	var resp chatCompletionResponse
	err := o.client.PostJSON(ctx, o.endpoint, map[string]string{"Authorization": "Bearer " + o.apiKey}, chatCompletionRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(translationPrompt, target)},
			{Role: "user", Content: text},
		},
		Temperature: 0,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai: api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if content := strings.TrimSpace(choice.Text); content != "" {
			return content, nil
		}
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return "", fmt.Errorf("openai: empty content (finish_reason=%q)", resp.Choices[0].FinishReason)
}
