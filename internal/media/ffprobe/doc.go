// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata
//
// Inspect runs ffprobe and parses the result. ProbeDuration is the tolerant
// variant used for display metadata: failures collapse to UnknownDuration.
package ffprobe
