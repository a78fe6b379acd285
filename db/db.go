// Package db provides database connection helpers, schema migration, and the
// channel-registry data access shared by the indexer and the HTTP surface.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN. The DSN comes from
// config.Load; this package does not read the environment itself.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database DSN")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		// Events carry no content-uniqueness constraint: duplicates are
		// prevented by cursor gating in the indexer, not by the schema.
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			username TEXT NOT NULL,
			snitch_name TEXT NOT NULL DEFAULT '',
			namelayer_group TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			t TIMESTAMPTZ NOT NULL
		)`,
		// last_indexed_id NULL means "never indexed"; live traffic must not
		// set it, only a backfill commit may.
		`CREATE TABLE IF NOT EXISTS snitch_channels (
			channel_id BIGINT PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			allowed_roles BIGINT[] NOT NULL DEFAULT '{}',
			last_indexed_id BIGINT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS snitches (
			guild_id BIGINT NOT NULL,
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			group_name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			dormant_ts BIGINT,
			cull_ts BIGINT,
			first_seen_ts BIGINT,
			last_seen_ts BIGINT,
			created_ts BIGINT,
			created_by_uuid TEXT NOT NULL DEFAULT '',
			renamed_ts BIGINT,
			renamed_by_uuid TEXT NOT NULL DEFAULT '',
			lost_jalist_access_ts BIGINT,
			broken_ts BIGINT,
			gone_ts BIGINT,
			tags TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			allowed_roles BIGINT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (guild_id, world, x, y, z)
		)`,
		`CREATE TABLE IF NOT EXISTS render_history (
			id BIGSERIAL PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			pixels BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id BIGINT PRIMARY KEY,
			command_prefix TEXT NOT NULL DEFAULT '.'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_guild_t ON events(guild_id, t)`,
		`CREATE INDEX IF NOT EXISTS idx_events_guild_name ON events(guild_id, snitch_name)`,
		`CREATE INDEX IF NOT EXISTS idx_events_guild_coords ON events(guild_id, x, y, z)`,
		`CREATE INDEX IF NOT EXISTS idx_snitch_channels_guild ON snitch_channels(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_render_history_guild_created ON render_history(guild_id, created_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// SnitchChannel is one registered snitch channel and its indexing cursor.
type SnitchChannel struct {
	ChannelID     int64
	GuildID       int64
	AllowedRoles  []int64
	LastIndexedID *int64 // nil = never indexed
}

// AddSnitchChannel registers a channel. Registering a channel twice is an
// error; to change roles the channel must be removed and re-added.
func AddSnitchChannel(ctx context.Context, dbx *sql.DB, ch SnitchChannel) error {
	res, err := dbx.ExecContext(ctx,
		`INSERT INTO snitch_channels (channel_id, guild_id, allowed_roles) VALUES ($1,$2,$3)
		 ON CONFLICT (channel_id) DO NOTHING`,
		ch.ChannelID, ch.GuildID, RolesParam(ch.AllowedRoles))
	if err != nil {
		return fmt.Errorf("add snitch channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("channel %d is already a snitch channel", ch.ChannelID)
	}
	return nil
}

// RemoveSnitchChannel unregisters a channel. Its already-indexed events remain.
func RemoveSnitchChannel(ctx context.Context, dbx *sql.DB, channelID int64) error {
	_, err := dbx.ExecContext(ctx, `DELETE FROM snitch_channels WHERE channel_id=$1`, channelID)
	if err != nil {
		return fmt.Errorf("remove snitch channel: %w", err)
	}
	return nil
}

// GetSnitchChannel looks up one channel; ok is false when unregistered.
func GetSnitchChannel(ctx context.Context, dbx *sql.DB, channelID int64) (SnitchChannel, bool, error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT channel_id, guild_id, array_to_string(allowed_roles, ','), last_indexed_id
		 FROM snitch_channels WHERE channel_id=$1`,
		channelID)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return SnitchChannel{}, false, nil
	}
	if err != nil {
		return SnitchChannel{}, false, err
	}
	return ch, true, nil
}

// ListSnitchChannels returns the registered channels for one guild, or for all
// guilds when guildID is zero (the startup backfill path).
func ListSnitchChannels(ctx context.Context, dbx *sql.DB, guildID int64) ([]SnitchChannel, error) {
	q := `SELECT channel_id, guild_id, array_to_string(allowed_roles, ','), last_indexed_id
	      FROM snitch_channels ORDER BY channel_id`
	args := []any{}
	if guildID != 0 {
		q = `SELECT channel_id, guild_id, array_to_string(allowed_roles, ','), last_indexed_id
		     FROM snitch_channels WHERE guild_id=$1 ORDER BY channel_id`
		args = append(args, guildID)
	}
	rows, err := dbx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snitch channels: %w", err)
	}
	defer rows.Close()
	var out []SnitchChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// VisibleChannels resolves the permission allow-set: the ids of the guild's
// snitch channels whose allowed roles overlap the requester's roles. An empty
// role set on either side overlaps nothing.
func VisibleChannels(ctx context.Context, dbx *sql.DB, guildID int64, roles []int64) ([]int64, error) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT channel_id FROM snitch_channels
		 WHERE guild_id=$1 AND allowed_roles && $2 ORDER BY channel_id`,
		guildID, RolesParam(roles))
	if err != nil {
		return nil, fmt.Errorf("visible channels: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpdateLastIndexed advances a channel's cursor. The guard keeps the cursor
// monotonic and refuses to initialize a never-indexed channel: only a backfill
// commit may set the first cursor value.
func UpdateLastIndexed(ctx context.Context, dbx *sql.DB, channelID, messageID int64) error {
	_, err := dbx.ExecContext(ctx,
		`UPDATE snitch_channels SET last_indexed_id=$2
		 WHERE channel_id=$1 AND last_indexed_id IS NOT NULL AND last_indexed_id < $2`,
		channelID, messageID)
	if err != nil {
		return fmt.Errorf("update last indexed: %w", err)
	}
	return nil
}

// ResetGuild deletes all of a guild's events and nulls its channel cursors in
// one transaction, so a subsequent index run starts from scratch.
func ResetGuild(ctx context.Context, dbx *sql.DB, guildID int64) error {
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset guild: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE guild_id=$1`, guildID); err != nil {
		return fmt.Errorf("reset guild: delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE snitch_channels SET last_indexed_id=NULL WHERE guild_id=$1`, guildID); err != nil {
		return fmt.Errorf("reset guild: null cursors: %w", err)
	}
	return tx.Commit()
}

// GetGuildPrefix returns the guild's command prefix, defaulting to ".".
func GetGuildPrefix(ctx context.Context, dbx *sql.DB, guildID int64) (string, error) {
	var prefix string
	err := dbx.QueryRowContext(ctx,
		`SELECT command_prefix FROM guild_settings WHERE guild_id=$1`, guildID).Scan(&prefix)
	if err == sql.ErrNoRows {
		return ".", nil
	}
	if err != nil {
		return "", fmt.Errorf("get guild prefix: %w", err)
	}
	return prefix, nil
}

// SetGuildPrefix stores the guild's command prefix.
func SetGuildPrefix(ctx context.Context, dbx *sql.DB, guildID int64, prefix string) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, command_prefix) VALUES ($1,$2)
		 ON CONFLICT (guild_id) DO UPDATE SET command_prefix=EXCLUDED.command_prefix`,
		guildID, prefix)
	if err != nil {
		return fmt.Errorf("set guild prefix: %w", err)
	}
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanChannel(row rowScanner) (SnitchChannel, error) {
	var ch SnitchChannel
	var roles string
	var cursor sql.NullInt64
	if err := row.Scan(&ch.ChannelID, &ch.GuildID, &roles, &cursor); err != nil {
		return SnitchChannel{}, err
	}
	ch.AllowedRoles = SplitRoles(roles)
	if cursor.Valid {
		ch.LastIndexedID = &cursor.Int64
	}
	return ch, nil
}

// RolesParam binds a role list as a BIGINT[] argument; nil becomes an empty
// array rather than NULL so NOT NULL columns and && comparisons stay valid.
func RolesParam(roles []int64) []int64 {
	if roles == nil {
		return []int64{}
	}
	return roles
}

// SplitRoles parses an array_to_string role projection; malformed entries are dropped.
func SplitRoles(s string) []int64 {
	if s == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
