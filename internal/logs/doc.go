// Package logs reads the daemon log file for `echvid logs`.
//
// Tail returns the last lines of the file, optionally filtered to lines that
// mention a job id or other substring, along with the byte offset to resume
// from. Follow polls from that offset until its context ends.
package logs
