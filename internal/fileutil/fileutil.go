// Package fileutil holds filesystem helpers for artifact writes.
package fileutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams r into a sibling temp file and renames it over dst once
// fully written, so readers never observe a partial file. The parent directory
// is created when missing. Returns the number of bytes written.
func WriteAtomic(dst string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return written, fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("sync %s: %w", filepath.Base(dst), err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close %s: %w", filepath.Base(dst), err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return written, fmt.Errorf("chmod %s: %w", filepath.Base(dst), err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return written, fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return written, nil
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(dst string, data []byte) error {
	_, err := WriteAtomic(dst, bytes.NewReader(data))
	return err
}

// NonEmptyFile reports whether path is a regular file with at least one byte.
func NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// TempPath returns a sibling path for a scratch file that WriteAtomic-style
// callers can rename over dst, used when an external tool writes the file.
func TempPath(dst string) string {
	dir, base := filepath.Split(dst)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+base[:len(base)-len(ext)]+".partial"+ext)
}
