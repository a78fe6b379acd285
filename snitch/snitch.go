// Package snitch holds the snitch value type, the pure derivation of snitches
// from event history, and persistence for imported snitch databases.
package snitch

import (
	"sort"
	"time"

	"github.com/onnwee/snitchvis/backend/event"
)

// DefaultWorld is assumed for snitches derived from events; relay messages
// carry no world, and snitch networks live in the overworld.
const DefaultWorld = "world"

// Key identifies a snitch. Two records with the same key are the same snitch.
type Key struct {
	World   string
	X, Y, Z int
}

// Snitch is one known snitch location. Lifecycle timestamps are unix
// milliseconds with zero meaning unknown, mirroring the SnitchMod export
// format where those columns are nullable.
type Snitch struct {
	GuildID int64
	World   string
	X, Y, Z int

	GroupName string
	Type      string
	Name      string

	DormantTS          int64
	CullTS             int64
	FirstSeenTS        int64
	LastSeenTS         int64
	CreatedTS          int64
	CreatedByUUID      string
	RenamedTS          int64
	RenamedByUUID      string
	LostJalistAccessTS int64
	BrokenTS           int64
	GoneTS             int64

	Tags  string
	Notes string

	AllowedRoles []int64
}

// Coords returns the snitch's identity key.
func (s Snitch) Coords() Key {
	return Key{World: s.World, X: s.X, Y: s.Y, Z: s.Z}
}

// FromEvents folds an event collection into the snitches it reveals. The fold
// is deterministic regardless of input order: name and group come from the
// most recent event carrying a non-empty value, first/last seen from the
// min/max timestamps observed at the coordinate.
func FromEvents(events []event.Event) map[Key]Snitch {
	type observation struct {
		at  time.Time
		id  int64
		set bool
	}
	// Equal timestamps are ordered by message id so the fold stays
	// deterministic when events share a clock tick.
	newer := func(ev event.Event, o observation) bool {
		if !o.set {
			return true
		}
		if !ev.T.Equal(o.at) {
			return ev.T.After(o.at)
		}
		return ev.MessageID > o.id
	}
	type freshness struct {
		name  observation
		group observation
	}
	out := make(map[Key]Snitch)
	fresh := make(map[Key]freshness)
	for _, ev := range events {
		k := Key{World: DefaultWorld, X: ev.X, Y: ev.Y, Z: ev.Z}
		t := ev.T.UnixMilli()
		s, ok := out[k]
		if !ok {
			s = Snitch{
				GuildID:     ev.GuildID,
				World:       k.World,
				X:           k.X,
				Y:           k.Y,
				Z:           k.Z,
				FirstSeenTS: t,
				LastSeenTS:  t,
			}
		} else {
			if t < s.FirstSeenTS {
				s.FirstSeenTS = t
			}
			if t > s.LastSeenTS {
				s.LastSeenTS = t
			}
		}
		f := fresh[k]
		if ev.SnitchName != "" && newer(ev, f.name) {
			s.Name = ev.SnitchName
			f.name = observation{at: ev.T, id: ev.MessageID, set: true}
		}
		if ev.NamelayerGroup != "" && newer(ev, f.group) {
			s.GroupName = ev.NamelayerGroup
			f.group = observation{at: ev.T, id: ev.MessageID, set: true}
		}
		out[k] = s
		fresh[k] = f
	}
	return out
}

// Merge unions imported snitch records into a derived set, keyed by
// coordinates. A derived snitch wins on collision; imported metadata only
// fills in what the events could not know.
func Merge(derived map[Key]Snitch, imported []Snitch) map[Key]Snitch {
	for _, imp := range imported {
		k := imp.Coords()
		cur, ok := derived[k]
		if !ok {
			derived[k] = imp
			continue
		}
		if cur.Name == "" {
			cur.Name = imp.Name
		}
		if cur.GroupName == "" {
			cur.GroupName = imp.GroupName
		}
		if cur.Type == "" {
			cur.Type = imp.Type
		}
		if cur.CreatedTS == 0 {
			cur.CreatedTS = imp.CreatedTS
		}
		if cur.CreatedByUUID == "" {
			cur.CreatedByUUID = imp.CreatedByUUID
		}
		if cur.DormantTS == 0 {
			cur.DormantTS = imp.DormantTS
		}
		if cur.CullTS == 0 {
			cur.CullTS = imp.CullTS
		}
		if cur.Tags == "" {
			cur.Tags = imp.Tags
		}
		if cur.Notes == "" {
			cur.Notes = imp.Notes
		}
		derived[k] = cur
	}
	return derived
}

// List flattens a snitch set into a slice with a stable order.
func List(m map[Key]Snitch) []Snitch {
	out := make([]Snitch, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.World != b.World {
			return a.World < b.World
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}
