// Package schedule implements the optional daily print window.
package schedule

import (
	"fmt"
	"time"
)

// Window is a daily time-of-day interval. A window whose end precedes its
// start wraps past midnight, so 22:00-06:00 covers late evening and early
// morning.
type Window struct {
	enabled      bool
	startMinutes int
	endMinutes   int
}

// Parse builds a Window from HH:MM boundaries. A disabled window contains
// every instant.
func Parse(enabled bool, start, end string) (Window, error) {
	if !enabled {
		return Window{}, nil
	}
	startMin, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("schedule start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("schedule end: %w", err)
	}
	return Window{enabled: true, startMinutes: startMin, endMinutes: endMin}, nil
}

// Enabled reports whether the window restricts printing at all.
func (w Window) Enabled() bool {
	return w.enabled
}

// Contains reports whether the given time falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.enabled {
		return true
	}
	minutes := t.Hour()*60 + t.Minute()
	if w.startMinutes == w.endMinutes {
		// Degenerate window: treat as always open rather than never.
		return true
	}
	if w.startMinutes < w.endMinutes {
		return minutes >= w.startMinutes && minutes < w.endMinutes
	}
	// Wraps midnight.
	return minutes >= w.startMinutes || minutes < w.endMinutes
}

// NextOpening returns the next instant at or after t when the window is
// open. If t is already inside the window it is returned unchanged.
func (w Window) NextOpening(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}
	opening := time.Date(t.Year(), t.Month(), t.Day(), w.startMinutes/60, w.startMinutes%60, 0, 0, t.Location())
	if !opening.After(t) {
		opening = opening.AddDate(0, 0, 1)
	}
	return opening
}

func parseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse %q as HH:MM: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
