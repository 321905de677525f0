// Package textutil provides small text helpers shared across packages:
// filename sanitization for uploaded and downloaded media, token cleanup and
// length-bounded truncation for persisted messages.
package textutil
