// Package deps reports whether the external executables the pipeline shells
// out to can be found.
package deps

import (
	"os/exec"
	"strings"

	"echvid/internal/config"
)

// Tool is one executable the pipeline invokes.
type Tool struct {
	Name        string
	Command     string
	Description string
	// Optional tools only back a subset of features.
	Optional bool
}

// Status is the result of resolving a Tool on PATH.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Tools lists the executables named in the tools section, defaulting blank
// entries to their usual names. yt-dlp only backs URL fetches.
func Tools(cfg config.Tools) []Tool {
	return []Tool{
		{Name: "FFmpeg", Command: pick(cfg.FFmpeg, "ffmpeg"), Description: "Extracts audio and renders the final video"},
		{Name: "FFprobe", Command: pick(cfg.FFprobe, "ffprobe"), Description: "Detects audio tracks and durations"},
		{Name: "yt-dlp", Command: pick(cfg.YTDLP, "yt-dlp"), Description: "Downloads source videos from URLs", Optional: true},
	}
}

// CheckTools resolves every configured tool.
func CheckTools(cfg config.Tools) []Status {
	return Check(Tools(cfg))
}

// Check resolves each tool in order.
func Check(tools []Tool) []Status {
	out := make([]Status, len(tools))
	for i, tool := range tools {
		command := strings.TrimSpace(tool.Command)
		out[i] = Status{
			Name:        tool.Name,
			Command:     command,
			Description: tool.Description,
			Optional:    tool.Optional,
		}
		switch resolved, err := lookup(command); {
		case command == "":
			out[i].Detail = "command not configured"
		case err != nil:
			out[i].Detail = command + " not found on PATH"
		default:
			out[i].Available = true
			out[i].Detail = resolved
		}
	}
	return out
}

// MissingRequired returns the unavailable tools that are not optional.
func MissingRequired(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

func lookup(command string) (string, error) {
	if command == "" {
		return "", exec.ErrNotFound
	}
	return exec.LookPath(command)
}

func pick(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
