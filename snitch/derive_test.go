package snitch

import (
	"reflect"
	"testing"
	"time"

	"github.com/onnwee/snitchvis/backend/event"
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func TestFromEventsSingleCoordinate(t *testing.T) {
	events := []event.Event{
		{GuildID: 1, Username: "a", SnitchName: "old", NamelayerGroup: "g", X: 1, Y: 2, Z: 3, T: at(100)},
		{GuildID: 1, Username: "b", SnitchName: "new", NamelayerGroup: "g2", X: 1, Y: 2, Z: 3, T: at(200)},
		{GuildID: 1, Username: "c", SnitchName: "", NamelayerGroup: "", X: 1, Y: 2, Z: 3, T: at(300)},
	}
	got := FromEvents(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 snitch, got %d", len(got))
	}
	s := got[Key{World: DefaultWorld, X: 1, Y: 2, Z: 3}]
	if s.Name != "new" || s.GroupName != "g2" {
		t.Errorf("name/group should come from the most recent non-empty event: %q/%q", s.Name, s.GroupName)
	}
	if s.FirstSeenTS != at(100).UnixMilli() || s.LastSeenTS != at(300).UnixMilli() {
		t.Errorf("first/last seen = %d/%d", s.FirstSeenTS, s.LastSeenTS)
	}
}

func TestFromEventsOrderIndependent(t *testing.T) {
	events := []event.Event{
		{Username: "a", SnitchName: "x", NamelayerGroup: "g", X: 0, Y: 0, Z: 0, T: at(50)},
		{Username: "b", SnitchName: "y", NamelayerGroup: "h", X: 0, Y: 0, Z: 0, T: at(150)},
		{Username: "c", SnitchName: "z", NamelayerGroup: "i", X: 9, Y: 9, Z: 9, T: at(75)},
	}
	reversed := []event.Event{events[2], events[1], events[0]}
	if !reflect.DeepEqual(FromEvents(events), FromEvents(reversed)) {
		t.Fatal("derivation depends on input order")
	}
}

func TestFromEventsRerunIsIdentical(t *testing.T) {
	events := []event.Event{
		{Username: "a", SnitchName: "x", NamelayerGroup: "g", X: 5, Y: 6, Z: 7, T: at(10)},
	}
	if !reflect.DeepEqual(FromEvents(events), FromEvents(events)) {
		t.Fatal("derivation is not deterministic")
	}
}

func TestFromEventsFreshCoordinateAddsOne(t *testing.T) {
	events := []event.Event{
		{Username: "a", SnitchName: "x", NamelayerGroup: "g", X: 1, Y: 1, Z: 1, T: at(10)},
		{Username: "a", SnitchName: "x", NamelayerGroup: "g", X: 1, Y: 1, Z: 1, T: at(20)},
	}
	base := FromEvents(events)
	withFresh := FromEvents(append(events, event.Event{
		Username: "b", NamelayerGroup: "g", X: 2, Y: 2, Z: 2, T: at(30),
	}))
	if len(withFresh) != len(base)+1 {
		t.Fatalf("expected exactly one new snitch, got %d -> %d", len(base), len(withFresh))
	}
}

func TestMergeKeyedByCoordinate(t *testing.T) {
	derived := FromEvents([]event.Event{
		{Username: "a", SnitchName: "pinged", NamelayerGroup: "g", X: 1, Y: 2, Z: 3, T: at(10)},
	})
	imported := []Snitch{
		{World: DefaultWorld, X: 1, Y: 2, Z: 3, Name: "imported", Type: "entry", CreatedTS: 99},
		{World: DefaultWorld, X: 7, Y: 8, Z: 9, Name: "only-imported", GroupName: "h"},
	}
	merged := Merge(derived, imported)
	if len(merged) != 2 {
		t.Fatalf("expected 2 snitches after merge, got %d", len(merged))
	}
	s := merged[Key{World: DefaultWorld, X: 1, Y: 2, Z: 3}]
	if s.Name != "pinged" {
		t.Errorf("derived name should win on collision, got %q", s.Name)
	}
	if s.Type != "entry" || s.CreatedTS != 99 {
		t.Errorf("imported metadata should fill gaps: type=%q created=%d", s.Type, s.CreatedTS)
	}
	if _, ok := merged[Key{World: DefaultWorld, X: 7, Y: 8, Z: 9}]; !ok {
		t.Error("import-only snitch missing after merge")
	}
}

func TestListStableOrder(t *testing.T) {
	m := map[Key]Snitch{
		{World: "world", X: 2, Y: 0, Z: 0}: {World: "world", X: 2},
		{World: "world", X: 1, Y: 0, Z: 0}: {World: "world", X: 1},
		{World: "world", X: 1, Y: 0, Z: 5}: {World: "world", X: 1, Z: 5},
	}
	got := List(m)
	if got[0].X != 1 || got[0].Z != 0 || got[1].Z != 5 || got[2].X != 2 {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestFromEventsTiedTimestampsBreakByMessageID(t *testing.T) {
	events := []event.Event{
		{MessageID: 1, Username: "a", SnitchName: "older", NamelayerGroup: "g1", X: 4, Y: 4, Z: 4, T: at(100)},
		{MessageID: 2, Username: "b", SnitchName: "newer", NamelayerGroup: "g2", X: 4, Y: 4, Z: 4, T: at(100)},
	}
	reversed := []event.Event{events[1], events[0]}

	forward := FromEvents(events)
	backward := FromEvents(reversed)
	if !reflect.DeepEqual(forward, backward) {
		t.Fatal("tied timestamps make derivation order-dependent")
	}
	s := forward[Key{World: DefaultWorld, X: 4, Y: 4, Z: 4}]
	if s.Name != "newer" || s.GroupName != "g2" {
		t.Errorf("tie should resolve to the higher message id: %q/%q", s.Name, s.GroupName)
	}
}
