// Package api is the HTTP transport for echvid. It mounts a chi router over
// the job queue, the media store and the account store, and translates
// internal models into transport-friendly DTOs.
//
// # Middleware
//
// One stack serves every route: panic recovery, a request id that doubles as
// the job correlation id, slog request logging, CORS, and a single bearer
// authorization middleware. Bearer values are either JWTs issued by
// POST /api/auth/login or the static paths.api_token, which authenticates as
// an admin for tooling.
//
// # Key Types
//
// JobView: transport representation of a queue job with progress and
// artifact availability.
//
// MediaView: an acquired source video owned by a user.
//
// DaemonStatus: aggregated runtime information including workflow stage
// health and external tool availability.
//
// # Design Notes
//
// Response DTOs use camelCase JSON tags. Request bodies keep the snake_case
// field names browser clients already send (source_lang, video_url) and are
// checked with validator/v10 before touching the queue. Timestamps use
// RFC3339 with milliseconds.
//
// Errors map from the services taxonomy to HTTP codes: validation problems
// are 400, missing resources 404, duplicate active jobs 409 and everything
// else 500. The error body carries the taxonomy kind for clients.
package api
