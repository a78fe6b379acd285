// Package query answers time- and permission-scoped questions about indexed
// snitch events.
package query

import (
	"errors"
	"time"
)

// ErrInvalidTimeRange is returned when a requested window ends before it
// starts.
var ErrInvalidTimeRange = errors.New("window end precedes start")

// ErrPermissionDenied is returned when the caller's roles grant access to no
// snitch channels in the guild.
var ErrPermissionDenied = errors.New("no snitch channels visible to caller")

// Window is a half-open event time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ResolveWindow turns optional start/end bounds into a concrete half-open
// window:
//
//   - neither bound: the def duration ending at the most recent event, so a
//     bare query always shows the latest activity regardless of how stale
//     the channel is: [mostRecent-def, mostRecent).
//   - start only: [start, now).
//   - end only: everything up to end.
//   - both: [start, end), rejected when end precedes start.
func ResolveWindow(start, end *time.Time, mostRecent, now time.Time, def time.Duration) (Window, error) {
	switch {
	case start == nil && end == nil:
		return Window{Start: mostRecent.Add(-def), End: mostRecent}, nil
	case start != nil && end == nil:
		return Window{Start: *start, End: now}, nil
	case start == nil && end != nil:
		return Window{Start: time.Unix(0, 0).UTC(), End: *end}, nil
	default:
		if end.Before(*start) {
			return Window{}, ErrInvalidTimeRange
		}
		return Window{Start: *start, End: *end}, nil
	}
}

// Past returns the window covering the last d before now: [now-d, now).
func Past(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// AllTime returns a window covering every event up to now.
func AllTime(now time.Time) Window {
	return Window{Start: time.Unix(0, 0).UTC(), End: now}
}
