// Package export writes a guild's indexed events and snitches to a portable
// SQLite database, optionally gzip-compressed.
package export

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/onnwee/snitchvis/backend/event"
	"github.com/onnwee/snitchvis/backend/snitch"
)

// ToSQLite writes events and snitches to a fresh SQLite database at path.
// An existing file at path is replaced. Snitches are deduplicated by
// coordinate; events are written as-is.
func ToSQLite(ctx context.Context, path string, events []event.Event, snitches []snitch.Snitch) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace export file: %w", err)
	}
	dbx, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open export db: %w", err)
	}
	defer dbx.Close()

	stmts := []string{
		`CREATE TABLE event (
			message_id INTEGER NOT NULL,
			channel_id INTEGER NOT NULL,
			username TEXT NOT NULL,
			snitch_name TEXT NOT NULL,
			namelayer_group TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			t INTEGER NOT NULL
		)`,
		`CREATE TABLE snitch (
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			group_name TEXT,
			type TEXT,
			name TEXT,
			dormant_ts INTEGER,
			cull_ts INTEGER,
			first_seen_ts INTEGER,
			last_seen_ts INTEGER,
			created_ts INTEGER,
			created_by_uuid TEXT,
			renamed_ts INTEGER,
			renamed_by_uuid TEXT,
			lost_jalist_access_ts INTEGER,
			broken_ts INTEGER,
			gone_ts INTEGER,
			tags TEXT,
			notes TEXT
		)`,
		`CREATE UNIQUE INDEX snitch_coords ON snitch(world, x, y, z)`,
	}
	for _, s := range stmts {
		if _, err := dbx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create export schema: %w", err)
		}
	}

	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event (message_id, channel_id, username, snitch_name, namelayer_group, x, y, z, t)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			ev.MessageID, ev.ChannelID, ev.Username, ev.SnitchName, ev.NamelayerGroup,
			ev.X, ev.Y, ev.Z, ev.T.UnixMilli()); err != nil {
			return fmt.Errorf("export event %d: %w", ev.MessageID, err)
		}
	}
	for _, s := range snitches {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO snitch (world, x, y, z, group_name, type, name,
				dormant_ts, cull_ts, first_seen_ts, last_seen_ts, created_ts, created_by_uuid,
				renamed_ts, renamed_by_uuid, lost_jalist_access_ts, broken_ts, gone_ts, tags, notes)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			s.World, s.X, s.Y, s.Z, s.GroupName, s.Type, s.Name,
			s.DormantTS, s.CullTS, s.FirstSeenTS, s.LastSeenTS, s.CreatedTS, s.CreatedByUUID,
			s.RenamedTS, s.RenamedByUUID, s.LostJalistAccessTS, s.BrokenTS, s.GoneTS, s.Tags, s.Notes); err != nil {
			return fmt.Errorf("export snitch (%d,%d,%d): %w", s.X, s.Y, s.Z, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

// GzipFile compresses src to dst.
func GzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return fmt.Errorf("compress %s: %w", src, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish gzip %s: %w", dst, err)
	}
	return out.Close()
}
