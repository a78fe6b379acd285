package indexer

import (
	"context"
	"sync"

	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/event"
)

// memStore is an in-memory Store with the same cursor semantics as the SQL
// implementation.
type memStore struct {
	mu       sync.Mutex
	channels map[int64]*db.SnitchChannel
	events   []event.Event
}

func newMemStore() *memStore {
	return &memStore{channels: make(map[int64]*db.SnitchChannel)}
}

func (m *memStore) addChannel(channelID, guildID int64, cursor *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = &db.SnitchChannel{ChannelID: channelID, GuildID: guildID, LastIndexedID: cursor}
}

func (m *memStore) Channels(ctx context.Context) ([]db.SnitchChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.SnitchChannel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, *ch)
	}
	return out, nil
}

func (m *memStore) Channel(ctx context.Context, channelID int64) (db.SnitchChannel, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return db.SnitchChannel{}, false, nil
	}
	return *ch, true, nil
}

func (m *memStore) CommitBackfill(ctx context.Context, channelID int64, events []event.Event, newCursor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	if ch, ok := m.channels[channelID]; ok {
		if ch.LastIndexedID == nil || *ch.LastIndexedID < newCursor {
			c := newCursor
			ch.LastIndexedID = &c
		}
	}
	return nil
}

func (m *memStore) InsertEvent(ctx context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) AdvanceCursor(ctx context.Context, channelID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[channelID]; ok {
		if ch.LastIndexedID != nil && *ch.LastIndexedID < messageID {
			c := messageID
			ch.LastIndexedID = &c
		}
	}
	return nil
}

func (m *memStore) allEvents() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *memStore) cursor(channelID int64) *int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok || ch.LastIndexedID == nil {
		return nil
	}
	c := *ch.LastIndexedID
	return &c
}
