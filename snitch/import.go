package snitch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite driver for reading SnitchMod databases
)

// ImportSnitchMod reads snitches from a SnitchMod sqlite database and inserts
// them for the guild, merged by coordinate key (duplicates are ignored). Only
// snitches reinforced to one of the given groups are imported; the special
// group "all" imports everything. Users holding one of roles will be able to
// render the imported snitches. Returns the number of new rows.
func ImportSnitchMod(ctx context.Context, pg *sql.DB, sqlitePath string, guildID int64, groups []string, roles []int64) (int, error) {
	src, err := sql.Open("sqlite3", "file:"+sqlitePath+"?mode=ro")
	if err != nil {
		return 0, fmt.Errorf("open snitchmod db: %w", err)
	}
	defer src.Close()

	all := false
	for _, g := range groups {
		if g == "all" {
			all = true
		}
	}

	// A misspelled group silently imports nothing, so verify each named group
	// exists before touching Postgres.
	if !all {
		for _, g := range groups {
			var n int
			if err := src.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM snitches_v2 WHERE group_name = ?`, g).Scan(&n); err != nil {
				return 0, fmt.Errorf("count group %q: %w", g, err)
			}
			if n == 0 {
				return 0, fmt.Errorf("no snitches on namelayer group %q found in this database", g)
			}
		}
	}

	q := `SELECT world, x, y, z, group_name, type, name,
		dormant_ts, cull_ts, first_seen_ts, last_seen_ts, created_ts,
		created_by_uuid, renamed_ts, renamed_by_uuid, lost_jalist_access_ts,
		broken_ts, gone_ts, tags, notes
	FROM snitches_v2`
	var args []any
	if !all {
		placeholders := make([]string, len(groups))
		for i, g := range groups {
			placeholders[i] = "?"
			args = append(args, g)
		}
		q += " WHERE group_name IN (" + strings.Join(placeholders, ", ") + ")"
	}

	rows, err := src.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("read snitchmod rows: %w", err)
	}
	defer rows.Close()

	added := 0
	for rows.Next() {
		s, err := scanSnitchMod(rows)
		if err != nil {
			return added, err
		}
		s.GuildID = guildID
		s.AllowedRoles = roles
		inserted, err := Upsert(ctx, pg, s)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, rows.Err()
}

func scanSnitchMod(rows *sql.Rows) (Snitch, error) {
	var s Snitch
	var world, group, typ, name, createdBy, renamedBy, tags, notes sql.NullString
	var dormant, cull, firstSeen, lastSeen, created, renamed, lostAccess, broken, gone sql.NullInt64
	if err := rows.Scan(&world, &s.X, &s.Y, &s.Z, &group, &typ, &name,
		&dormant, &cull, &firstSeen, &lastSeen, &created,
		&createdBy, &renamed, &renamedBy, &lostAccess,
		&broken, &gone, &tags, &notes); err != nil {
		return Snitch{}, fmt.Errorf("scan snitchmod row: %w", err)
	}
	s.World = world.String
	if s.World == "" {
		s.World = DefaultWorld
	}
	s.GroupName = group.String
	s.Type = typ.String
	s.Name = name.String
	s.DormantTS = dormant.Int64
	s.CullTS = cull.Int64
	s.FirstSeenTS = firstSeen.Int64
	s.LastSeenTS = lastSeen.Int64
	s.CreatedTS = created.Int64
	s.CreatedByUUID = createdBy.String
	s.RenamedTS = renamed.Int64
	s.RenamedByUUID = renamedBy.String
	s.LostJalistAccessTS = lostAccess.Int64
	s.BrokenTS = broken.Int64
	s.GoneTS = gone.Int64
	s.Tags = tags.String
	s.Notes = notes.String
	return s, nil
}
