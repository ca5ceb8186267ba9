// Package server exposes the capture coordinator over HTTP: a WebSocket
// stream for periodic sessions and a small REST surface.
package server

import "time"

// Server configuration constants
const (
	// Per-connection WebSocket message limit
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Rows returned by the history endpoint when no limit is given
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000

	// Upper bound for a POST /api/screenshot body
	MaxRequestBytes = 64 << 10

	// Message a second stream receives while a session is active
	BusyMessage = "capture already in progress"
)
