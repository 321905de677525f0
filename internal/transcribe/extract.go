package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"echvid/internal/fileutil"
	"echvid/internal/media/ffprobe"
	"echvid/internal/services"
)

// Extractor pulls the audio track out of a video with ffmpeg.
type Extractor struct {
	FFmpeg  string
	FFprobe string
}

// ExtractArgs builds the ffmpeg command that writes 16 kHz mono PCM to dst.
func ExtractArgs(videoPath, dst string) []string {
	return []string{
		"-y", "-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		dst,
	}
}

// Extract writes the audio track of videoPath to audioPath. Nothing is left
// at audioPath when it fails.
func (e Extractor) Extract(ctx context.Context, videoPath, audioPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrStorage, "extract", "open source", "Source video is missing", err)
		}
		return services.Wrap(services.ErrStorage, "extract", "open source", "Source video is unreadable", err)
	}

	probe, err := ffprobe.Inspect(ctx, e.FFprobe, videoPath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "extract", "probe source", "Source video could not be opened", err)
	}
	if !probe.HasAudio() {
		return services.Wrap(services.ErrNoAudio, "extract", "probe source", "Video has no audio", nil)
	}

	tmp := fileutil.TempPath(audioPath)
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "extract", "prepare output", "Failed to create audio directory", err)
	}
	defer os.Remove(tmp)

	binary := strings.TrimSpace(e.FFmpeg)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, ExtractArgs(videoPath, tmp)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCanceled, "extract", "ffmpeg", "Audio extraction interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrTranscription, "extract", "ffmpeg",
			fmt.Sprintf("Audio extraction failed: %s", strings.TrimSpace(stderr.String())), err)
	}
	if !fileutil.NonEmptyFile(tmp) {
		return services.Wrap(services.ErrTranscription, "extract", "ffmpeg", "Audio extraction produced no output", nil)
	}
	if err := os.Rename(tmp, audioPath); err != nil {
		return services.Wrap(services.ErrStorage, "extract", "persist audio", "Failed to store extracted audio", err)
	}
	return nil
}
