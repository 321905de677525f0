package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"echvid/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrComposition, "compositing", "mux", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrComposition) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"compositing", "mux", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindNames(t *testing.T) {
	cases := map[error]string{
		services.ErrStorage:       "StorageError",
		services.ErrAcquisition:   "AcquisitionError",
		services.ErrNoAudio:       "NoAudioError",
		services.ErrTranscription: "TranscriptionError",
		services.ErrTranslation:   "TranslationError",
		services.ErrSynthesis:     "SynthesisError",
		services.ErrComposition:   "CompositionError",
	}
	for marker, want := range cases {
		err := services.Wrap(marker, "stage", "op", "msg", nil)
		if got := services.Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", marker, got, want)
		}
	}
	if got := services.Kind(errors.New("plain")); got != "InternalError" {
		t.Fatalf("unexpected kind for plain error: %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}

func TestTransientMarkerSurvivesWrapping(t *testing.T) {
	cause := services.Transient(errors.New("http 503"))
	err := services.Wrap(services.ErrTranslation, "translating", "segment 2", "request failed", cause)
	if !services.IsTransient(err) {
		t.Fatal("expected transient marker to propagate through Wrap")
	}
	if services.Kind(err) != "TranslationError" {
		t.Fatalf("expected translation kind, got %q", services.Kind(err))
	}
	if services.IsTransient(services.Wrap(services.ErrNoAudio, "extracting", "probe", "none", nil)) {
		t.Fatal("no-audio failures must not be transient")
	}
	if services.Transient(nil) != nil {
		t.Fatal("Transient(nil) should be nil")
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrStorage, "extracting", "open source", "missing file", fmt.Errorf("stat: no such file"))
	d := services.Details(err)
	if d.Kind != "StorageError" {
		t.Fatalf("unexpected kind %q", d.Kind)
	}
	if strings.HasPrefix(d.Message, "storage error") {
		t.Fatalf("expected marker prefix removed, got %q", d.Message)
	}
	if !strings.Contains(d.Message, "missing file") {
		t.Fatalf("expected message detail, got %q", d.Message)
	}
	if d.Transient {
		t.Fatal("storage failure should not be transient")
	}
}
