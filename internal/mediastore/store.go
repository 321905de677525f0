package mediastore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"echvid/internal/config"
	"echvid/internal/fileutil"
	"echvid/internal/services"
	"echvid/internal/textutil"
)

// Kind identifies one artifact family.
type Kind string

const (
	KindUpload     Kind = "upload"
	KindAudio      Kind = "audio"
	KindTranscript Kind = "transcript"
	KindTranslated Kind = "translated"
	KindSpeech     Kind = "speech"
	KindFinal      Kind = "final"
)

type layout struct {
	dir    string
	suffix string
}

var layouts = map[Kind]layout{
	KindUpload:     {dir: "uploads"},
	KindAudio:      {dir: "audio", suffix: "_audio.wav"},
	KindTranscript: {dir: "subtitles", suffix: "_transcript.txt"},
	KindTranslated: {dir: "subtitles", suffix: "_translated.txt"},
	KindSpeech:     {dir: "speech", suffix: "_translated_audio.mp3"},
	KindFinal:      {dir: "output", suffix: "_final.mp4"},
}

// ArtifactKinds lists every kind in pipeline order.
func ArtifactKinds() []Kind {
	return []Kind{KindUpload, KindAudio, KindTranscript, KindTranslated, KindSpeech, KindFinal}
}

// IntermediateKinds are the per-stage scratch artifacts removed by Cleanup by
// default: everything except sources and final outputs.
func IntermediateKinds() []Kind {
	return []Kind{KindAudio, KindTranscript, KindTranslated, KindSpeech}
}

// ParseKind maps a user-facing name to a Kind.
func ParseKind(value string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	_, ok := layouts[k]
	return k, ok
}

// ErrInvalidFilename is returned when a name sanitizes to nothing.
var ErrInvalidFilename = errors.New("invalid filename")

// SanitizeFilename reduces a client-supplied name to a safe job key.
func SanitizeFilename(name string) (string, error) {
	clean := textutil.SanitizeFileName(name)
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return clean, nil
}

// Store resolves and writes artifacts below a media root.
type Store struct {
	root string
}

// New prepares the stage directories below root.
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "mediastore", "init", "Media directory is not configured", nil)
	}
	s := &Store{root: filepath.Clean(root)}
	seen := make(map[string]struct{})
	for _, l := range layouts {
		if _, ok := seen[l.dir]; ok {
			continue
		}
		seen[l.dir] = struct{}{}
		if err := os.MkdirAll(filepath.Join(s.root, l.dir), 0o755); err != nil {
			return nil, services.Wrap(services.ErrStorage, "mediastore", "init", "Failed to create media directory "+l.dir, err)
		}
	}
	return s, nil
}

// FromConfig opens the store rooted at paths.media_dir.
func FromConfig(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "mediastore", "init", "Configuration unavailable", nil)
	}
	return New(cfg.Paths.MediaDir)
}

// Root returns the media root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory that holds artifacts of kind.
func (s *Store) Dir(kind Kind) string {
	return filepath.Join(s.root, layouts[kind].dir)
}

// Path derives the artifact path for a job key.
func (s *Store) Path(kind Kind, filename string) string {
	l, ok := layouts[kind]
	if !ok {
		return ""
	}
	return filepath.Join(s.root, l.dir, filename+l.suffix)
}

// Exists reports whether a non-empty artifact is present.
func (s *Store) Exists(kind Kind, filename string) bool {
	return fileutil.NonEmptyFile(s.Path(kind, filename))
}

// SaveUpload writes r verbatim to uploads/{filename}. The name must already
// be sanitized.
func (s *Store) SaveUpload(filename string, r io.Reader) (string, int64, error) {
	if filename == "" || filename != textutil.SanitizeFileName(filename) {
		return "", 0, services.Wrap(services.ErrValidation, "mediastore", "save upload", "Upload filename is not sanitized", ErrInvalidFilename)
	}
	dst := s.Path(KindUpload, filename)
	n, err := fileutil.WriteAtomic(dst, r)
	if err != nil {
		return "", n, services.Wrap(services.ErrStorage, "mediastore", "save upload", "Failed to write uploaded video", err)
	}
	return dst, n, nil
}

// WriteText persists a text artifact atomically and returns its path.
func (s *Store) WriteText(kind Kind, filename, text string) (string, error) {
	dst := s.Path(kind, filename)
	if dst == "" {
		return "", services.Wrap(services.ErrStorage, "mediastore", "write", "Unknown artifact kind "+string(kind), nil)
	}
	if err := fileutil.WriteFileAtomic(dst, []byte(text)); err != nil {
		return "", services.Wrap(services.ErrStorage, "mediastore", "write", "Failed to write "+string(kind)+" artifact", err)
	}
	return dst, nil
}

// WriteBytes persists a binary artifact atomically and returns its path.
func (s *Store) WriteBytes(kind Kind, filename string, data []byte) (string, error) {
	dst := s.Path(kind, filename)
	if dst == "" {
		return "", services.Wrap(services.ErrStorage, "mediastore", "write", "Unknown artifact kind "+string(kind), nil)
	}
	if err := fileutil.WriteFileAtomic(dst, data); err != nil {
		return "", services.Wrap(services.ErrStorage, "mediastore", "write", "Failed to write "+string(kind)+" artifact", err)
	}
	return dst, nil
}

// ReadText loads a text artifact. A missing file maps to ErrStorage.
func (s *Store) ReadText(kind Kind, filename string) (string, error) {
	data, err := os.ReadFile(s.Path(kind, filename))
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "mediastore", "read", "Missing "+string(kind)+" artifact", err)
	}
	return string(data), nil
}

// Remove deletes every artifact of one job key, including the upload.
// Missing files are skipped. The removed paths are returned.
func (s *Store) Remove(filename string) ([]string, error) {
	var removed []string
	for _, kind := range ArtifactKinds() {
		path := s.Path(kind, filename)
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, services.Wrap(services.ErrStorage, "mediastore", "remove", "Failed to delete "+string(kind)+" artifact", err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// Cleanup empties the directories of the given kinds, defaulting to the
// intermediate stage artifacts. Returns the number of files removed.
func (s *Store) Cleanup(kinds ...Kind) (int, error) {
	if len(kinds) == 0 {
		kinds = IntermediateKinds()
	}
	dirs := make(map[string]struct{})
	for _, kind := range kinds {
		if _, ok := layouts[kind]; ok {
			dirs[s.Dir(kind)] = struct{}{}
		}
	}
	count := 0
	for dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return count, services.Wrap(services.ErrStorage, "mediastore", "cleanup", "Failed to list "+dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return count, services.Wrap(services.ErrStorage, "mediastore", "cleanup", "Failed to delete "+entry.Name(), err)
			}
			count++
		}
	}
	return count, nil
}

// ListUploads returns the uploaded source filenames, sorted.
func (s *Store) ListUploads() ([]string, error) {
	entries, err := os.ReadDir(s.Dir(KindUpload))
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "mediastore", "list", "Failed to list uploads", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
