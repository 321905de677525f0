// Package notifications delivers job lifecycle events to ntfy.
//
// The workflow publishes an Event with a Payload; the ntfy service formats a
// title, message and tags for it. When no topic is configured NewService
// returns a no-op so callers never branch on configuration.
package notifications
