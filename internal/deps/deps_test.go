package deps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echvid/internal/config"
)

func TestCheckResolvesTools(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	results := Check([]Tool{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "echvid-no-such-binary"},
		{Name: "Blank", Command: "  "},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].Available)
	assert.Equal(t, present, results[0].Detail, "available tools report the resolved path")

	assert.False(t, results[1].Available)
	assert.Equal(t, "echvid-no-such-binary not found on PATH", results[1].Detail)

	assert.False(t, results[2].Available)
	assert.Equal(t, "command not configured", results[2].Detail)
}

func TestToolsDefaults(t *testing.T) {
	tools := Tools(config.Tools{FFmpeg: "/opt/ffmpeg/bin/ffmpeg"})
	require.Len(t, tools, 3)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", tools[0].Command)
	assert.Equal(t, "ffprobe", tools[1].Command)
	assert.Equal(t, "yt-dlp", tools[2].Command)
	assert.True(t, tools[2].Optional)
	assert.False(t, tools[0].Optional)
}

func TestMissingRequiredSkipsOptional(t *testing.T) {
	missing := MissingRequired([]Status{
		{Name: "FFmpeg", Available: true},
		{Name: "FFprobe"},
		{Name: "yt-dlp", Optional: true},
	})
	require.Len(t, missing, 1)
	assert.Equal(t, "FFprobe", missing[0].Name)
}
