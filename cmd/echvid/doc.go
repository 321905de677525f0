// Package main hosts the echvid CLI entrypoint and command graph.
//
// The Cobra command tree covers the daemon lifecycle (run, start, stop,
// status), queue maintenance, media acquisition and job submission, account
// administration, log tailing and configuration scaffolding. Queue and
// account commands open the shared SQLite databases directly, so they work
// whether or not the daemon is running.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through a command here.
package main
