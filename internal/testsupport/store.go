package testsupport

import (
	"context"
	"testing"

	"echvid/internal/config"
	"echvid/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a job for filename with English to Spanish defaults.
func NewJob(t testing.TB, store *queue.Store, filename string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), queue.Submission{
		Filename:        filename,
		SourcePath:      "/media/uploads/" + filename,
		UserID:          1,
		SourceLang:      "en",
		TranslationLang: "es",
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
