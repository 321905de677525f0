package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"echvid/internal/config"
)

const userAgent = "echvid/0.1"

// Event names a notification kind.
type Event string

const (
	EventJobSucceeded   Event = "job_succeeded"
	EventJobFailed      Event = "job_failed"
	EventQueueStarted   Event = "queue_started"
	EventQueueCompleted Event = "queue_completed"
	EventTest           Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.Notifications.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobSucceeded:   cfg.Notifications.JobSucceeded,
			EventJobFailed:      cfg.Notifications.JobFailed,
			EventQueueStarted:   true,
			EventQueueCompleted: true,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobSucceeded:
		return message{
			title: "echvid - Video Ready",
			body:  fmt.Sprintf("✅ %s dubbed to %s", payload.str("filename"), payload.str("language")),
			tags:  []string{"echvid", "job", "succeeded"},
		}, true
	case EventJobFailed:
		return message{
			title:    "echvid - Job Failed",
			body:     fmt.Sprintf("❌ %s failed at %s: %s (%s)", payload.str("filename"), payload.str("stage"), payload.str("message"), payload.str("kind")),
			tags:     []string{"echvid", "job", "failed"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return message{
			title: "echvid - Queue Started",
			body:  fmt.Sprintf("▶️ Processing %d job(s)", payload.int("count")),
			tags:  []string{"echvid", "queue", "started"},
		}, true
	case EventQueueCompleted:
		return message{
			title: "echvid - Queue Complete",
			body: fmt.Sprintf("🏁 Queue drained: %d succeeded, %d failed in %s",
				payload.int("succeeded"), payload.int("failed"), payload.duration("duration").Round(time.Second)),
			tags: []string{"echvid", "queue", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "echvid - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"echvid", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (p Payload) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return v.Error()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func (p Payload) duration(key string) time.Duration {
	if d, ok := p[key].(time.Duration); ok {
		return d
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
