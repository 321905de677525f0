// Package remote is the HTTP plumbing shared by the recognition, translation
// and synthesis engines.
//
// A Client executes a request builder with bounded retries. Timeouts, HTTP
// 408/429 and 5xx responses are retried with exponential backoff (honoring
// Retry-After); other statuses fail immediately. When retries are exhausted on
// a retryable failure the returned error carries services.ErrTransient so the
// job queue can redeliver the whole stage later.
package remote
