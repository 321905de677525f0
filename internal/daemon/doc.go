// Package daemon coordinates the long-running echvid process.
//
// It wires configuration, queue storage and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// On start the daemon returns jobs left mid-stage by a previous process to
// their last completed state before any worker claims work. APIServer hosts
// the HTTP transport next to the workers and shuts down gracefully with them.
//
// Keep orchestration logic here: individual pipeline stages live in their
// own packages while the daemon focuses on startup, shutdown and status.
package daemon
