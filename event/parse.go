package event

import (
	"regexp"
	"strconv"
	"strings"
)

// The relay prints one line per snitch notification, wrapped in discord
// markdown by the relay bot:
//
//	`[23:05:23]` `[mta]` **tybug** is at shop (-120,64,767)
//	`[23:05:23]` `[mta]` **tybug** logged in at  (480,70,-2439)
//
// The bracketed clock is in-game time and is only validated for shape; the
// authoritative event timestamp is the message timestamp. The snitch name may
// be empty. Coordinates are signed integers, optionally space-separated.
var eventPattern = regexp.MustCompile(
	"^`\\[\\d{2}:\\d{2}:\\d{2}\\]` `\\[([^\\]]+)\\]` " +
		"\\*\\*([^*]+)\\*\\* (?:is|logged in|logged out) at (.*?) " +
		"\\((-?\\d+), ?(-?\\d+), ?(-?\\d+)\\)$")

// Parse extracts an event from a single chat message. The second return value
// is false when the text is not a snitch notification.
func Parse(text string) (Event, bool) {
	m := eventPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Event{}, false
	}
	x, err := strconv.Atoi(m[4])
	if err != nil {
		return Event{}, false
	}
	y, err := strconv.Atoi(m[5])
	if err != nil {
		return Event{}, false
	}
	z, err := strconv.Atoi(m[6])
	if err != nil {
		return Event{}, false
	}
	return Event{
		Username:       m[2],
		SnitchName:     strings.TrimSpace(m[3]),
		NamelayerGroup: m[1],
		X:              x,
		Y:              y,
		Z:              z,
	}, true
}
