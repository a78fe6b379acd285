// Package render turns a scoped event query into a rendered visualization,
// gated by the usage throttle.
package render

import (
	"context"
	"errors"
	"time"

	"github.com/onnwee/snitchvis/backend/event"
	"github.com/onnwee/snitchvis/backend/query"
	"github.com/onnwee/snitchvis/backend/snitch"
)

// ErrNoEvents is returned when the resolved window contains nothing to show.
var ErrNoEvents = errors.New("no events in the requested window")

// Request describes one visualization ask. Start/End are optional; All and
// Past override them when set.
type Request struct {
	GuildID int64
	UserID  int64 // requester, used to resolve channel visibility

	Start *time.Time
	End   *time.Time
	All   bool          // whole history
	Past  time.Duration // last d before now; 0 = unset

	Users  []string // filter to these event usernames
	Groups []string // filter to these namelayer groups

	Size     int           // square output edge, pixels
	FPS      int
	Duration time.Duration // video length

	Mode        string  // "box" (default) or "line" event drawing
	FadePercent float64 // portion of the event lifetime spent fading out; 0 = renderer default
	AllSnitches bool    // draw every visible snitch, not just those with events in the window
}

// Pixels is the throttling cost of the request: every output frame pixel.
func (r Request) Pixels() int64 {
	return int64(r.Size) * int64(r.Size) * int64(r.FPS) * int64(r.Duration/time.Second)
}

// Job is the fully resolved unit of work handed to a Renderer.
type Job struct {
	GuildID  int64           `json:"guild_id"`
	Events   []event.Event   `json:"events"`
	Snitches []snitch.Snitch `json:"snitches"`
	Users    []string        `json:"users"` // distinct event usernames, first-seen order
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Size     int             `json:"size"`
	FPS      int             `json:"fps"`
	Duration float64         `json:"duration_seconds"`

	Mode        string  `json:"mode"`
	FadePercent float64 `json:"fade_percent,omitempty"`
}

// Result reports a completed render.
type Result struct {
	Path       string       `json:"path"`
	EventCount int          `json:"event_count"`
	Pixels     int64        `json:"pixels"`
	Window     query.Window `json:"window"`
}

// Renderer produces the output artifact for a job and returns its path.
type Renderer interface {
	Render(ctx context.Context, job Job) (string, error)
}

// distinctUsers returns event usernames in order of first appearance.
func distinctUsers(events []event.Event) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range events {
		if !seen[ev.Username] {
			seen[ev.Username] = true
			out = append(out, ev.Username)
		}
	}
	return out
}
