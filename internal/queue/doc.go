// Package queue is the durable job queue behind the dubbing pipeline.
//
// The Store persists jobs in SQLite, hands them to workers through an atomic
// claim, tracks heartbeats, and rolls interrupted stages back to the last
// completed state so a crashed or redelivered job resumes safely. It also
// keeps the media table that records every acquired source video.
//
// Schema changes bump schemaVersion in schema.go; operators clear the
// database to adopt the new schema.
package queue
