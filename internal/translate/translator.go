package translate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"echvid/internal/logging"
	"echvid/internal/services"
)

// Engine is one translation backend. source may be empty for auto-detect.
type Engine interface {
	Name() string
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Translator applies the segmentation and throttling policy around an Engine.
type Translator struct {
	engine   Engine
	budget   int
	throttle time.Duration
	sleep    func(context.Context, time.Duration) error
	logger   *slog.Logger
}

// Option customizes a Translator.
type Option func(*Translator)

// WithBudget overrides the segment budget in characters.
func WithBudget(budget int) Option {
	return func(t *Translator) {
		if budget > 0 {
			t.budget = budget
		}
	}
}

// WithThrottle sets the pause between consecutive segment calls.
func WithThrottle(d time.Duration) Option {
	return func(t *Translator) {
		if d >= 0 {
			t.throttle = d
		}
	}
}

// WithSleep replaces the throttle sleep (tests).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(t *Translator) {
		if fn != nil {
			t.sleep = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = logger
	}
}

// Close releases the engine when it holds a connection.
func (t *Translator) Close() error {
	if closer, ok := t.engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewTranslator wraps engine with the default budget and a one second throttle.
func NewTranslator(engine Engine, opts ...Option) *Translator {
	t := &Translator{
		engine:   engine,
		budget:   DefaultBudget,
		throttle: time.Second,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "translate")
	return t
}

// Translate returns text rendered in target. Partial results are discarded
// when any segment fails.
func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	if t.engine == nil {
		return "", services.Wrap(services.ErrConfiguration, "translate", "init", "No translation engine configured", nil)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", services.Wrap(services.ErrTranslation, "translate", "validate", "Target language is required", nil)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	segments := Segment(text, t.budget)
	results := make([]string, 0, len(segments))
	for i, segment := range segments {
		if i > 0 && t.throttle > 0 {
			if err := t.sleep(ctx, t.throttle); err != nil {
				return "", services.Wrap(services.ErrCanceled, "translate", "throttle", "Translation interrupted", err)
			}
		}
		chunk := strings.TrimSpace(segment)
		if chunk == "" {
			continue
		}
		out, err := t.engine.Translate(ctx, chunk, "", target)
		if err != nil {
			return "", services.Wrap(services.ErrTranslation, "translate", t.engine.Name(),
				fmt.Sprintf("Segment %d of %d failed", i+1, len(segments)), err)
		}
		results = append(results, strings.TrimSpace(out))
		t.logger.Debug("segment translated",
			logging.Int("segment", i+1),
			logging.Int("segments", len(segments)),
			logging.Int("chars", len([]rune(chunk))),
		)
	}
	return strings.TrimSpace(strings.Join(results, " ")), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
