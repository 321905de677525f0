// Package transcribe turns a source video into transcript text.
//
// Extraction and recognition are separate steps so the orchestrator can
// persist the extracted audio before calling the recognition service:
//
//   - Extractor probes the container and writes a 16 kHz mono WAV with
//     ffmpeg, failing with services.ErrNoAudio when there is no audio stream.
//   - Recognizer is the speech recognition contract; WhisperClient speaks the
//     OpenAI-compatible /audio/transcriptions API.
//   - Shared lazily builds one Recognizer per process and hands the same
//     instance to every job.
package transcribe
