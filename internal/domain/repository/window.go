package repository

import "time"

// Window represents the lookback horizon of a metric request.
type Window string

const (
	Win24h Window = "24h"
	Win7d  Window = "7d"
	Win30d Window = "30d"
)

// IsValidWindow returns true if w is a supported lookback window.
func IsValidWindow(w Window) bool {
	switch w {
	case Win24h, Win7d, Win30d:
		return true
	default:
		return false
	}
}

// DefaultWindow returns the default lookback window.
func DefaultWindow() Window { return Win24h }

// NormalizeWindow converts a raw string to a valid window (or default).
func NormalizeWindow(s string) Window {
	if s == "" {
		return DefaultWindow()
	}
	w := Window(s)
	if IsValidWindow(w) {
		return w
	}
	return DefaultWindow()
}

// Duration converts a window to its time span.
func (w Window) Duration() time.Duration {
	switch w {
	case Win7d:
		return 7 * 24 * time.Hour
	case Win30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
