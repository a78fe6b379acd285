package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/onnwee/snitchvis/backend/testutil"
	"github.com/onnwee/snitchvis/backend/transport"
)

func eventLine(name string) string {
	return fmt.Sprintf("`[12:01:02]` `[guard]` **Alice** is at %s (100, 64, -200)", name)
}

func msg(id, channelID int64, content string, t time.Time) transport.Message {
	return transport.Message{ID: id, ChannelID: channelID, GuildID: 1, AuthorID: 99, Content: content, Timestamp: t}
}

func TestBackfillChannelParsesAndAdvances(t *testing.T) {
	src := testutil.NewFakeSource()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src.Add(
		msg(10, 5, eventLine("shrine"), base),
		msg(11, 5, "gm everyone", base.Add(time.Minute)),
		msg(12, 5, eventLine("gate"), base.Add(2*time.Minute)),
		msg(13, 5, "unrelated chatter", base.Add(3*time.Minute)),
	)
	store := newMemStore()
	store.addChannel(5, 1, nil)

	ix := &Indexer{Source: src, Store: store}
	ch, _, _ := store.Channel(context.Background(), 5)
	added, err := ix.BackfillChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("BackfillChannel: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	events := store.allEvents()
	if len(events) != 2 {
		t.Fatalf("stored %d events, want 2", len(events))
	}
	// oldest first
	if events[0].MessageID != 10 || events[1].MessageID != 12 {
		t.Errorf("event order = [%d %d], want [10 12]", events[0].MessageID, events[1].MessageID)
	}
	if events[0].SnitchName != "shrine" || events[0].GuildID != 1 {
		t.Errorf("unexpected envelope: %+v", events[0])
	}
	// cursor lands on the newest message even though it did not parse
	cur := store.cursor(5)
	if cur == nil || *cur != 13 {
		t.Fatalf("cursor = %v, want 13", cur)
	}
}

func TestBackfillChannelExclusiveBoundary(t *testing.T) {
	src := testutil.NewFakeSource()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 6; i++ {
		src.Add(msg(i, 5, eventLine(fmt.Sprintf("snitch-%d", i)), base.Add(time.Duration(i)*time.Minute)))
	}
	store := newMemStore()
	cursor := int64(4)
	store.addChannel(5, 1, &cursor)

	ix := &Indexer{Source: src, Store: store}
	ch, _, _ := store.Channel(context.Background(), 5)
	added, err := ix.BackfillChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("BackfillChannel: %v", err)
	}
	// message 4 itself is already indexed; only 5 and 6 are new
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	if cur := store.cursor(5); cur == nil || *cur != 6 {
		t.Fatalf("cursor = %v, want 6", cur)
	}

	// a second run with the advanced cursor is a no-op
	ch, _, _ = store.Channel(context.Background(), 5)
	added, err = ix.BackfillChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("second BackfillChannel: %v", err)
	}
	if added != 0 {
		t.Fatalf("rerun added = %d, want 0", added)
	}
	if got := len(store.allEvents()); got != 2 {
		t.Fatalf("rerun grew store to %d events", got)
	}
}

func TestBackfillChannelEmptyLeavesCursor(t *testing.T) {
	src := testutil.NewFakeSource()
	store := newMemStore()
	store.addChannel(5, 1, nil)

	ix := &Indexer{Source: src, Store: store}
	ch, _, _ := store.Channel(context.Background(), 5)
	added, err := ix.BackfillChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("BackfillChannel: %v", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
	if cur := store.cursor(5); cur != nil {
		t.Fatalf("empty channel initialized cursor to %d", *cur)
	}
}

func TestBackfillChannelPagesThroughHistory(t *testing.T) {
	src := testutil.NewFakeSource()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 25; i++ {
		src.Add(msg(i, 5, eventLine(fmt.Sprintf("s%d", i)), base.Add(time.Duration(i)*time.Second)))
	}
	store := newMemStore()
	store.addChannel(5, 1, nil)

	ix := &Indexer{Source: src, Store: store, PageSize: 10}
	ch, _, _ := store.Channel(context.Background(), 5)
	added, err := ix.BackfillChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("BackfillChannel: %v", err)
	}
	if added != 25 {
		t.Fatalf("added = %d, want 25", added)
	}
	events := store.allEvents()
	for i, ev := range events {
		if ev.MessageID != int64(i+1) {
			t.Fatalf("events[%d].MessageID = %d, want %d", i, ev.MessageID, i+1)
		}
	}
	if cur := store.cursor(5); cur == nil || *cur != 25 {
		t.Fatalf("cursor = %v, want 25", cur)
	}
}

func TestBackfillAllIsolatesChannelFailures(t *testing.T) {
	src := testutil.NewFakeSource()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src.Add(msg(10, 5, eventLine("shrine"), base))
	src.Add(msg(20, 6, eventLine("gate"), base))
	src.FailChannel(6, errors.New("missing access"))

	store := newMemStore()
	store.addChannel(5, 1, nil)
	store.addChannel(6, 1, nil)

	ix := &Indexer{Source: src, Store: store}
	if err := ix.BackfillAll(context.Background(), 2); err != nil {
		t.Fatalf("BackfillAll: %v", err)
	}
	if cur := store.cursor(5); cur == nil || *cur != 10 {
		t.Fatalf("healthy channel cursor = %v, want 10", cur)
	}
	if cur := store.cursor(6); cur != nil {
		t.Fatalf("failed channel cursor = %v, want nil", *cur)
	}
	if got := len(store.allEvents()); got != 1 {
		t.Fatalf("stored %d events, want 1", got)
	}
}
