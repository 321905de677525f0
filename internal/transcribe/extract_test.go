package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echvid/internal/services"
)

const ffmpegStub = `#!/bin/sh
for a; do last=$a; done
printf 'RIFFwave' > "$last"
`

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func probeStub(t *testing.T, dir, streams string) string {
	return writeStub(t, dir, "ffprobe", "#!/bin/sh\necho '{\"streams\":["+streams+"],\"format\":{\"duration\":\"10\"}}'\n")
}

func TestExtractWritesAudio(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "talk.mp4")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))
	audio := filepath.Join(dir, "audio", "talk.mp4_audio.wav")

	ex := Extractor{
		FFmpeg:  writeStub(t, dir, "ffmpeg", ffmpegStub),
		FFprobe: probeStub(t, dir, `{"codec_type":"video"},{"codec_type":"audio"}`),
	}
	require.NoError(t, ex.Extract(context.Background(), video, audio))

	data, err := os.ReadFile(audio)
	require.NoError(t, err)
	assert.Equal(t, "RIFFwave", string(data))
	entries, err := os.ReadDir(filepath.Dir(audio))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not linger")
}

func TestExtractRejectsSilentVideo(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "silent.mp4")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))
	audio := filepath.Join(dir, "silent.mp4_audio.wav")

	ex := Extractor{
		FFmpeg:  writeStub(t, dir, "ffmpeg", ffmpegStub),
		FFprobe: probeStub(t, dir, `{"codec_type":"video"}`),
	}
	err := ex.Extract(context.Background(), video, audio)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNoAudio))
	assert.Equal(t, "NoAudioError", services.Kind(err))
	assert.NoFileExists(t, audio)
}

func TestExtractMissingSourceIsStorageError(t *testing.T) {
	dir := t.TempDir()
	ex := Extractor{FFmpeg: "ffmpeg", FFprobe: "ffprobe"}
	err := ex.Extract(context.Background(), filepath.Join(dir, "gone.mp4"), filepath.Join(dir, "a.wav"))
	require.Error(t, err)
	assert.Equal(t, "StorageError", services.Kind(err))
}

func TestExtractFFmpegFailure(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "talk.mp4")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))
	audio := filepath.Join(dir, "talk.mp4_audio.wav")

	ex := Extractor{
		FFmpeg:  writeStub(t, dir, "ffmpeg", "#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"),
		FFprobe: probeStub(t, dir, `{"codec_type":"audio"}`),
	}
	err := ex.Extract(context.Background(), video, audio)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.NoFileExists(t, audio)
}
