// Package event defines the snitch event value type and the parser for the
// relay message grammar. Parsing is pure: most chat traffic is unrelated, so a
// non-matching line is an expected outcome, not an error.
package event

import "time"

// Event is a single snitch observation extracted from one relay message.
// Username, SnitchName, NamelayerGroup and the coordinates come from the
// message text; the envelope fields (guild/channel/message id and T) come from
// the message itself and are filled in by the caller.
type Event struct {
	MessageID int64
	ChannelID int64
	GuildID   int64

	Username       string
	SnitchName     string // empty for unnamed snitches
	NamelayerGroup string
	X, Y, Z        int
	T              time.Time
}
