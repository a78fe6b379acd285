package snitch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/snitchvis/backend/db"
)

// Upsert inserts an imported snitch, ignoring duplicates by coordinate key.
// Returns true when a new row was added.
func Upsert(ctx context.Context, dbx *sql.DB, s Snitch) (bool, error) {
	res, err := dbx.ExecContext(ctx,
		`INSERT INTO snitches (
			guild_id, world, x, y, z, group_name, type, name,
			dormant_ts, cull_ts, first_seen_ts, last_seen_ts, created_ts,
			created_by_uuid, renamed_ts, renamed_by_uuid, lost_jalist_access_ts,
			broken_ts, gone_ts, tags, notes, allowed_roles
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (guild_id, world, x, y, z) DO NOTHING`,
		s.GuildID, s.World, s.X, s.Y, s.Z, s.GroupName, s.Type, s.Name,
		nullableMS(s.DormantTS), nullableMS(s.CullTS), nullableMS(s.FirstSeenTS),
		nullableMS(s.LastSeenTS), nullableMS(s.CreatedTS),
		s.CreatedByUUID, nullableMS(s.RenamedTS), s.RenamedByUUID,
		nullableMS(s.LostJalistAccessTS), nullableMS(s.BrokenTS), nullableMS(s.GoneTS),
		s.Tags, s.Notes, db.RolesParam(s.AllowedRoles))
	if err != nil {
		return false, fmt.Errorf("upsert snitch: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GuildSnitches returns the imported snitches a member with the given roles
// may see. A nil role set returns nothing.
func GuildSnitches(ctx context.Context, dbx *sql.DB, guildID int64, roles []int64) ([]Snitch, error) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT guild_id, world, x, y, z, group_name, type, name,
			COALESCE(dormant_ts,0), COALESCE(cull_ts,0), COALESCE(first_seen_ts,0),
			COALESCE(last_seen_ts,0), COALESCE(created_ts,0), created_by_uuid,
			COALESCE(renamed_ts,0), renamed_by_uuid, COALESCE(lost_jalist_access_ts,0),
			COALESCE(broken_ts,0), COALESCE(gone_ts,0), tags, notes,
			array_to_string(allowed_roles, ',')
		 FROM snitches WHERE guild_id=$1 AND allowed_roles && $2`,
		guildID, db.RolesParam(roles))
	if err != nil {
		return nil, fmt.Errorf("guild snitches: %w", err)
	}
	defer rows.Close()

	var out []Snitch
	for rows.Next() {
		var s Snitch
		var allowed string
		if err := rows.Scan(&s.GuildID, &s.World, &s.X, &s.Y, &s.Z, &s.GroupName,
			&s.Type, &s.Name, &s.DormantTS, &s.CullTS, &s.FirstSeenTS, &s.LastSeenTS,
			&s.CreatedTS, &s.CreatedByUUID, &s.RenamedTS, &s.RenamedByUUID,
			&s.LostJalistAccessTS, &s.BrokenTS, &s.GoneTS, &s.Tags, &s.Notes,
			&allowed); err != nil {
			return nil, fmt.Errorf("scan snitch: %w", err)
		}
		s.AllowedRoles = db.SplitRoles(allowed)
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullableMS(ts int64) any {
	if ts == 0 {
		return nil
	}
	return ts
}
