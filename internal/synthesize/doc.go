// Package synthesize turns translated text into a speech track.
//
// The Synthesizer resolves the target language to a service voice locale,
// splits text that exceeds the engine's input limit at sentence boundaries
// and concatenates the MP3 payloads in order. Engines are swappable; the
// shipped engine speaks to the Google Cloud Text-to-Speech REST API.
package synthesize
