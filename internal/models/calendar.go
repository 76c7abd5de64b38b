package models

import (
	"fmt"
	"time"
)

// CalendarIdentity is an opaque handle for one resource calendar
// (one per location and booking type).
type CalendarIdentity string

func (c CalendarIdentity) String() string { return string(c) }

// TimeInterval is a half-open interval [Start, End).
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeInterval returns an interval, rejecting empty or inverted ranges.
func NewTimeInterval(start, end time.Time) (TimeInterval, error) {
	if !end.After(start) {
		return TimeInterval{}, fmt.Errorf("interval end %s must be after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return TimeInterval{Start: start, End: end}, nil
}

// Valid reports whether End is strictly after Start.
func (i TimeInterval) Valid() bool {
	return i.End.After(i.Start)
}

func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps uses half-open semantics: intervals that only touch do not overlap.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Clip restricts the interval to window. ok is false when nothing remains.
func (i TimeInterval) Clip(window TimeInterval) (TimeInterval, bool) {
	if !i.Overlaps(window) {
		return TimeInterval{}, false
	}
	out := i
	if out.Start.Before(window.Start) {
		out.Start = window.Start
	}
	if out.End.After(window.End) {
		out.End = window.End
	}
	return out, true
}

// BusyWindow is the set of occupied intervals reported for a calendar
// within a queried window. No ordering is guaranteed.
type BusyWindow struct {
	Calendar CalendarIdentity `json:"calendar"`
	Window   TimeInterval     `json:"window"`
	Busy     []TimeInterval   `json:"busy"`
}

// Conflicts reports whether any busy entry overlaps candidate.
func (w BusyWindow) Conflicts(candidate TimeInterval) bool {
	for _, b := range w.Busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// FullyBusy builds the fail-safe window that marks the whole range occupied.
func FullyBusy(calendar CalendarIdentity, window TimeInterval) BusyWindow {
	return BusyWindow{
		Calendar: calendar,
		Window:   window,
		Busy:     []TimeInterval{window},
	}
}
