// Package logging assembles structured slog loggers used across echvid.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code tags log lines
// with job IDs, stages, worker slots and correlation IDs automatically.
package logging
