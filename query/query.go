package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/snitchvis/backend/event"
	"github.com/onnwee/snitchvis/backend/telemetry"
)

// Filter narrows an event query. Empty Users/Groups slices mean no
// restriction. Channels is the permission allow-set resolved from the
// caller's roles; an empty allow-set means the caller can see nothing and
// every query function returns ErrPermissionDenied.
type Filter struct {
	GuildID  int64
	Window   Window
	Users    []string
	Groups   []string
	Channels []int64
}

// EventsInWindow returns events matching f ordered by time then id.
func EventsInWindow(ctx context.Context, dbx *sql.DB, f Filter) ([]event.Event, error) {
	if len(f.Channels) == 0 {
		return nil, ErrPermissionDenied
	}
	var (
		events []event.Event
		err    error
	)
	telemetry.TimeFunc(telemetry.QueryDuration, func() {
		var sb strings.Builder
		sb.WriteString(`SELECT message_id, channel_id, guild_id, username, snitch_name, namelayer_group, x, y, z, t
			FROM events WHERE guild_id = $1 AND channel_id = ANY($2) AND t >= $3 AND t < $4`)
		args := []any{f.GuildID, f.Channels, f.Window.Start, f.Window.End}
		if len(f.Users) > 0 {
			lowered := make([]string, len(f.Users))
			for i, u := range f.Users {
				lowered[i] = strings.ToLower(u)
			}
			args = append(args, lowered)
			fmt.Fprintf(&sb, " AND LOWER(username) = ANY($%d)", len(args))
		}
		if len(f.Groups) > 0 {
			args = append(args, f.Groups)
			fmt.Fprintf(&sb, " AND namelayer_group = ANY($%d)", len(args))
		}
		sb.WriteString(" ORDER BY t, message_id")

		var rows *sql.Rows
		rows, err = dbx.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			err = fmt.Errorf("query events: %w", err)
			return
		}
		defer rows.Close()
		events, err = scanEvents(rows)
	})
	return events, err
}

// MostRecentEvent returns the newest event visible through the allow-set.
// ok is false when no visible events exist at all.
func MostRecentEvent(ctx context.Context, dbx *sql.DB, guildID int64, channels []int64) (event.Event, bool, error) {
	if len(channels) == 0 {
		return event.Event{}, false, ErrPermissionDenied
	}
	row := dbx.QueryRowContext(ctx, `
		SELECT message_id, channel_id, guild_id, username, snitch_name, namelayer_group, x, y, z, t
		FROM events WHERE guild_id = $1 AND channel_id = ANY($2)
		ORDER BY t DESC, message_id DESC LIMIT 1`, guildID, channels)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return event.Event{}, false, nil
	}
	if err != nil {
		return event.Event{}, false, fmt.Errorf("query most recent event: %w", err)
	}
	return ev, true, nil
}

// AllEvents returns every visible event in the guild, oldest first.
func AllEvents(ctx context.Context, dbx *sql.DB, guildID int64, channels []int64) ([]event.Event, error) {
	return EventsInWindow(ctx, dbx, Filter{
		GuildID:  guildID,
		Window:   AllTime(time.Now().Add(time.Second)),
		Channels: channels,
	})
}

// RecentEventsByName returns the newest limit events at snitches with the
// given name (case-insensitive), newest first.
func RecentEventsByName(ctx context.Context, dbx *sql.DB, guildID int64, channels []int64, name string, limit int) ([]event.Event, error) {
	if len(channels) == 0 {
		return nil, ErrPermissionDenied
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := dbx.QueryContext(ctx, `
		SELECT message_id, channel_id, guild_id, username, snitch_name, namelayer_group, x, y, z, t
		FROM events WHERE guild_id = $1 AND channel_id = ANY($2) AND LOWER(snitch_name) = LOWER($3)
		ORDER BY t DESC, message_id DESC LIMIT $4`, guildID, channels, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query events by name: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEventsByLocation returns the newest limit events at the given
// coordinates, newest first. A nil y matches any height, so (x, z) lookups
// find the snitch without knowing its depth.
func RecentEventsByLocation(ctx context.Context, dbx *sql.DB, guildID int64, channels []int64, x int, y *int, z int, limit int) ([]event.Event, error) {
	if len(channels) == 0 {
		return nil, ErrPermissionDenied
	}
	if limit <= 0 {
		limit = 10
	}
	var (
		rows *sql.Rows
		err  error
	)
	if y != nil {
		rows, err = dbx.QueryContext(ctx, `
			SELECT message_id, channel_id, guild_id, username, snitch_name, namelayer_group, x, y, z, t
			FROM events WHERE guild_id = $1 AND channel_id = ANY($2) AND x = $3 AND y = $4 AND z = $5
			ORDER BY t DESC, message_id DESC LIMIT $6`, guildID, channels, x, *y, z, limit)
	} else {
		rows, err = dbx.QueryContext(ctx, `
			SELECT message_id, channel_id, guild_id, username, snitch_name, namelayer_group, x, y, z, t
			FROM events WHERE guild_id = $1 AND channel_id = ANY($2) AND x = $3 AND z = $4
			ORDER BY t DESC, message_id DESC LIMIT $5`, guildID, channels, x, z, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query events by location: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var ev event.Event
	err := row.Scan(&ev.MessageID, &ev.ChannelID, &ev.GuildID, &ev.Username, &ev.SnitchName, &ev.NamelayerGroup, &ev.X, &ev.Y, &ev.Z, &ev.T)
	return ev, err
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}
