// Package config loads, normalizes, and validates echvid configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GOOGLE_API_KEY or DEEPL_API_KEY so service credentials can live outside the
// config file.
package config
