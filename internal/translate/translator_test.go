package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echvid/internal/config"
	"echvid/internal/services"
	"echvid/internal/services/remote"
)

type recordingEngine struct {
	calls  []string
	failAt int
	err    error
}

func (r *recordingEngine) Name() string { return "recording" }

func (r *recordingEngine) Translate(_ context.Context, text, _, target string) (string, error) {
	r.calls = append(r.calls, text)
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return "", r.err
	}
	return "[" + target + "]" + text, nil
}

func TestTranslatorSingleCallUnderBudget(t *testing.T) {
	engine := &recordingEngine{}
	tr := NewTranslator(engine, WithBudget(100))
	out, err := tr.Translate(context.Background(), "Hello world. Bye.", "fr")
	require.NoError(t, err)
	assert.Equal(t, "[fr]Hello world. Bye.", out)
	assert.Len(t, engine.calls, 1)
}

func TestTranslatorSegmentsInOrderWithThrottle(t *testing.T) {
	engine := &recordingEngine{}
	var sleeps []time.Duration
	tr := NewTranslator(engine,
		WithBudget(12),
		WithThrottle(time.Second),
		WithSleep(func(_ context.Context, d time.Duration) error { sleeps = append(sleeps, d); return nil }),
	)
	out, err := tr.Translate(context.Background(), "One one. Two two. Three.", "de")
	require.NoError(t, err)
	assert.Equal(t, []string{"One one.", "Two two.", "Three."}, engine.calls)
	assert.Equal(t, "[de]One one. [de]Two two. [de]Three.", out)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)
}

func TestTranslatorAbortsOnSegmentFailure(t *testing.T) {
	engine := &recordingEngine{failAt: 2, err: errors.New("quota exceeded")}
	tr := NewTranslator(engine, WithBudget(10), WithThrottle(0))
	out, err := tr.Translate(context.Background(), "Aaaa aaa. Bbbb bbb. Cccc ccc.", "es")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "TranslationError", services.Kind(err))
	assert.Contains(t, err.Error(), "Segment 2 of 3")
	assert.Len(t, engine.calls, 2, "no segment after the failure is attempted")
}

func TestTranslatorKeepsTransientMarker(t *testing.T) {
	engine := &recordingEngine{failAt: 1, err: services.Transient(errors.New("503"))}
	tr := NewTranslator(engine)
	_, err := tr.Translate(context.Background(), "Hi.", "es")
	require.Error(t, err)
	assert.True(t, services.IsTransient(err))
	assert.Equal(t, "TranslationError", services.Kind(err))
}

func TestTranslatorDeterministicWithEcho(t *testing.T) {
	tr := NewTranslator(EchoEngine{}, WithBudget(5), WithThrottle(0))
	text := "A. B. C. D."
	first, err := tr.Translate(context.Background(), text, "fr")
	require.NoError(t, err)
	second, err := tr.Translate(context.Background(), text, "fr")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, text, first)
}

func TestTranslatorBlankInputAndTarget(t *testing.T) {
	engine := &recordingEngine{}
	tr := NewTranslator(engine)
	out, err := tr.Translate(context.Background(), "   ", "fr")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, engine.calls)

	_, err = tr.Translate(context.Background(), "Hi.", "")
	assert.Error(t, err)
}

func TestGoogleEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		var req googleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fr", req.Target)
		assert.Equal(t, []string{"Hello"}, req.Q)
		_, _ = w.Write([]byte(`{"data":{"translations":[{"translatedText":"Bonjour"}]}}`))
	}))
	defer server.Close()

	engine := NewGoogleEngine(config.Translation{BaseURL: server.URL, APIKey: "k"})
	out, err := engine.Translate(context.Background(), "Hello", "", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out)
}

func TestDeepLEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DeepL-Auth-Key k", r.Header.Get("Authorization"))
		var req deeplRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "DE", req.TargetLang)
		_, _ = w.Write([]byte(`{"translations":[{"text":"Hallo"}]}`))
	}))
	defer server.Close()

	engine := NewDeepLEngine(config.Translation{BaseURL: server.URL, APIKey: "k"})
	out, err := engine.Translate(context.Background(), "Hello", "", "de")
	require.NoError(t, err)
	assert.Equal(t, "Hallo", out)
}

func TestOpenAIEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.True(t, strings.Contains(req.Messages[0].Content, `"it"`))
		assert.Equal(t, "Hello", req.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Ciao "}}]}`))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(config.Translation{BaseURL: server.URL, APIKey: "k", Model: "m"})
	out, err := engine.Translate(context.Background(), "Hello", "", "it")
	require.NoError(t, err)
	assert.Equal(t, "Ciao", out)
}

func TestOpenAIEngineEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(config.Translation{BaseURL: server.URL}, remote.WithRetryMaxAttempts(1))
	_, err := engine.Translate(context.Background(), "Hello", "", "it")
	assert.Error(t, err)
}

func TestExtractGeminiText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hola "), genai.Text("mundo")}},
		}},
	}
	out, err := extractGeminiText(resp)
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", out)

	_, err = extractGeminiText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	_, err := NewEngine(context.Background(), config.Translation{Provider: "babelfish"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConfiguration))

	engine, err := NewEngine(context.Background(), config.Translation{Provider: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", engine.Name())
}

type closingEngine struct {
	EchoEngine
	closed int
}

func (c *closingEngine) Close() error {
	c.closed++
	return nil
}

func TestTranslatorCloseReleasesEngine(t *testing.T) {
	engine := &closingEngine{}
	require.NoError(t, NewTranslator(engine).Close())
	assert.Equal(t, 1, engine.closed)

	require.NoError(t, NewTranslator(&recordingEngine{}).Close(), "engines without a connection need no close")
}

func TestGeminiEngineCloseWithoutClient(t *testing.T) {
	assert.NoError(t, (&GeminiEngine{}).Close())
}
