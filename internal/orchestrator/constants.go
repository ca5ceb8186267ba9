package orchestrator

// Coordinator defaults
const (
	// Hamming distance at or below which two captures count as duplicates
	MaxHashDistance = 5

	// Per-subscriber event buffer
	SubscriberBuffer = 16
)

// Wire event types
const (
	EventScreenshot = "screenshot"
	EventError      = "error"

	// ErrorCode is the code every error event carries
	ErrorCode = "SCREENSHOT_ERROR"
)
