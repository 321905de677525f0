package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"echvid/internal/config"
	"echvid/internal/mediastore"
)

// WriteFile creates path (and its parent) holding size filler bytes, at
// least one.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'B'}, int(max(size, 1))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SeedArtifact places a filler artifact of the given kind for filename in the
// configured media store and returns its path.
func SeedArtifact(t testing.TB, cfg *config.Config, kind mediastore.Kind, filename string, size int64) string {
	t.Helper()
	media, err := mediastore.FromConfig(cfg)
	if err != nil {
		t.Fatalf("mediastore.FromConfig: %v", err)
	}
	path := media.Path(kind, filename)
	WriteFile(t, path, size)
	return path
}
