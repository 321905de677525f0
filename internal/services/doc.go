// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker slots and
//     correlation identifiers for logging.
//   - The error taxonomy (storage, acquisition, no-audio, transcription,
//     translation, synthesis, composition) plus the Wrap helper and the
//     Transient marker the workflow uses to decide on redelivery.
//
// Stage code returns tagged errors; the workflow manager turns them into a
// failed job with a recorded kind and message.
package services
