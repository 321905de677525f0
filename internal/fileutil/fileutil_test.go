package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "out.txt")

	n, err := WriteAtomic(dst, strings.NewReader("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Fatalf("written = %d, want 11", n)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestWriteAtomicOverwrites(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteFileAtomic(dst, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(dst, []byte("second")); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "second" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestWriteAtomicLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.txt")
	if _, err := WriteAtomic(dst, failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}
}

func TestNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if NonEmptyFile(empty) || NonEmptyFile(filepath.Join(dir, "missing")) || NonEmptyFile(dir) {
		t.Fatal("expected false for empty, missing and directory")
	}
	if !NonEmptyFile(full) {
		t.Fatal("expected true for non-empty file")
	}
}

func TestTempPath(t *testing.T) {
	got := TempPath("/media/output/talk.mp4_final.mp4")
	want := "/media/output/.talk.mp4_final.partial.mp4"
	if got != want {
		t.Fatalf("TempPath() = %q, want %q", got, want)
	}
}
