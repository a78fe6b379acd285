package indexer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/event"
)

// Store is the persistence surface the indexer needs. The SQL implementation
// backs production; tests use an in-memory one.
type Store interface {
	// Channels lists every registered snitch channel, across all guilds.
	Channels(ctx context.Context) ([]db.SnitchChannel, error)
	// Channel looks up a single registered channel. ok is false when the
	// channel is not registered.
	Channel(ctx context.Context, channelID int64) (db.SnitchChannel, bool, error)
	// CommitBackfill persists a batch of backfilled events and the new
	// cursor in one transaction, so a crash never leaves events without a
	// cursor covering them.
	CommitBackfill(ctx context.Context, channelID int64, events []event.Event, newCursor int64) error
	// InsertEvent appends one live event.
	InsertEvent(ctx context.Context, ev event.Event) error
	// AdvanceCursor moves the channel cursor forward. It never moves a
	// cursor backwards and never initializes a NULL cursor.
	AdvanceCursor(ctx context.Context, channelID, messageID int64) error
}

// SQLStore implements Store on Postgres.
type SQLStore struct {
	DB *sql.DB
}

func (s *SQLStore) Channels(ctx context.Context) ([]db.SnitchChannel, error) {
	return db.ListSnitchChannels(ctx, s.DB, 0)
}

func (s *SQLStore) Channel(ctx context.Context, channelID int64) (db.SnitchChannel, bool, error) {
	return db.GetSnitchChannel(ctx, s.DB, channelID)
}

func (s *SQLStore) CommitBackfill(ctx context.Context, channelID int64, events []event.Event, newCursor int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backfill tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (guild_id, channel_id, message_id, username, snitch_name, namelayer_group, x, y, z, t)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			ev.GuildID, ev.ChannelID, ev.MessageID, ev.Username, ev.SnitchName, ev.NamelayerGroup, ev.X, ev.Y, ev.Z, ev.T); err != nil {
			return fmt.Errorf("insert backfilled event (message %d): %w", ev.MessageID, err)
		}
	}
	// Unlike live advancement, a backfill commit may initialize a NULL
	// cursor: the scan itself is what makes the history trustworthy.
	if _, err := tx.ExecContext(ctx, `
		UPDATE snitch_channels SET last_indexed_id = $2
		WHERE channel_id = $1 AND (last_indexed_id IS NULL OR last_indexed_id < $2)`,
		channelID, newCursor); err != nil {
		return fmt.Errorf("set cursor for channel %d: %w", channelID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit backfill for channel %d: %w", channelID, err)
	}
	return nil
}

func (s *SQLStore) InsertEvent(ctx context.Context, ev event.Event) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO events (guild_id, channel_id, message_id, username, snitch_name, namelayer_group, x, y, z, t)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		ev.GuildID, ev.ChannelID, ev.MessageID, ev.Username, ev.SnitchName, ev.NamelayerGroup, ev.X, ev.Y, ev.Z, ev.T)
	if err != nil {
		return fmt.Errorf("insert event (message %d): %w", ev.MessageID, err)
	}
	return nil
}

func (s *SQLStore) AdvanceCursor(ctx context.Context, channelID, messageID int64) error {
	return db.UpdateLastIndexed(ctx, s.DB, channelID, messageID)
}
