package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"echvid/internal/services"
)

func TestPostJSONDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		if r.Header.Get("X-Key") != "abc" {
			t.Errorf("missing custom header")
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient("test", 5)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.PostJSON(context.Background(), server.URL, map[string]string{"X-Key": "abc"}, map[string]string{"q": "x"}, &out); err != nil {
		t.Fatalf("PostJSON returned error: %v", err)
	}
	if !out.OK {
		t.Fatal("expected decoded payload")
	}
}

func TestDoRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient("test", 5, WithSleeper(func(d time.Duration) { slept = append(slept, d) }))
	body, err := client.Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if string(body) != "done" {
		t.Fatalf("unexpected body %q", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if len(slept) != 2 || slept[0] != time.Second {
		t.Fatalf("expected Retry-After sleeps, got %v", slept)
	}
}

func TestDoMarksExhaustedRetriesTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test", 5, WithSleeper(func(time.Duration) {}))
	_, err := client.Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unsupported language"}`))
	}))
	defer server.Close()

	client := NewClient("test", 5, WithSleeper(func(time.Duration) {}))
	_, err := client.Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsTransient(err) {
		t.Fatal("client errors must not be transient")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	client := NewClient("test", 5, WithRetryBackoff(time.Second, 3*time.Second))
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 3 * time.Second, 6: 3 * time.Second}
	for attempt, want := range cases {
		if got := client.backoffDelay(attempt); got != want {
			t.Fatalf("backoffDelay(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("5"); !ok || d != 5*time.Second {
		t.Fatalf("unexpected %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatal("negative must be rejected")
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("empty must be rejected")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  a\n\tb  "); got != "a b" {
		t.Fatalf("Snippet() = %q", got)
	}
	if got := Snippet(""); got != "<empty>" {
		t.Fatalf("Snippet(empty) = %q", got)
	}
}
