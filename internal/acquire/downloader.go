package acquire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Downloader fetches a remote video into dir and returns the local path.
type Downloader interface {
	Download(ctx context.Context, url, dir string) (string, error)
}

// YTDLP shells out to yt-dlp requesting the best combined audio and video
// remuxed to mp4.
type YTDLP struct {
	Binary string
}

func (y YTDLP) binary() string {
	if b := strings.TrimSpace(y.Binary); b != "" {
		return b
	}
	return "yt-dlp"
}

// Args builds the yt-dlp command line for url.
func (y YTDLP) Args(url, dir string) []string {
	return []string{
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"--remux-video", "mp4",
		"--no-playlist",
		"--restrict-filenames",
		"--retries", "10",
		"--socket-timeout", "30",
		"--no-progress",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
		"--print", "after_move:filepath",
		"--", url,
	}
}

// Download runs yt-dlp and returns the final file path it reports.
func (y YTDLP) Download(ctx context.Context, url, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, y.binary(), y.Args(url, dir)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := lastLine(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("yt-dlp: %s: %w", detail, err)
	}
	path := lastLine(stdout.String())
	if path == "" {
		return "", errors.New("yt-dlp reported no output file")
	}
	return path, nil
}

func lastLine(output string) string {
	var last string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return last
}
