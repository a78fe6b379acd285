// Package transport defines the narrow slice of the chat platform this service
// consumes: message history, live message delivery, and role membership. The
// concrete client (discord session, test fake) lives with the caller; nothing
// in this package talks to the network.
package transport

import (
	"context"
	"time"
)

// Message is one chat message as delivered by the platform. IDs are platform
// snowflakes and are strictly increasing within a channel.
type Message struct {
	ID        int64
	ChannelID int64
	GuildID   int64
	AuthorID  int64
	Content   string
	Timestamp time.Time
}

// Source provides read access to channel history.
type Source interface {
	// History returns up to limit messages from the channel that are strictly
	// older than beforeID, newest first. beforeID zero means "start from the
	// newest message". An empty slice means the channel is exhausted.
	History(ctx context.Context, channelID, beforeID int64, limit int) ([]Message, error)
}

// RoleResolver reports a member's role ids, used to resolve the set of
// channels (and imported snitches) a requester may see.
type RoleResolver interface {
	MemberRoles(ctx context.Context, guildID, userID int64) ([]int64, error)
}
