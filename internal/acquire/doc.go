// Package acquire normalizes incoming videos into the media store.
//
// Two entry points produce a job key (the sanitized filename) and a local
// path under uploads/: Upload copies a client stream verbatim, Fetch invokes
// yt-dlp for a remote URL. Both record the file in the media table with a
// best-effort duration label; a failed probe yields "unknown" and never
// aborts the acquisition.
package acquire
