package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/onnwee/snitchvis/backend/transport"
)

// FakeSource is an in-memory transport.Source backed by per-channel message
// lists. Safe for concurrent use; messages may be appended while a test runs
// to simulate live traffic arriving mid-backfill.
type FakeSource struct {
	mu       sync.Mutex
	messages map[int64][]transport.Message // per channel, any order
	failing  map[int64]error               // channels whose history calls fail
}

// NewFakeSource returns an empty source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		messages: make(map[int64][]transport.Message),
		failing:  make(map[int64]error),
	}
}

// Add appends messages to their channels.
func (f *FakeSource) Add(msgs ...transport.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.messages[m.ChannelID] = append(f.messages[m.ChannelID], m)
	}
}

// FailChannel makes history calls for the channel return err.
func (f *FakeSource) FailChannel(channelID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("channel %d unavailable", channelID)
	}
	f.failing[channelID] = err
}

// History implements transport.Source: newest first, strictly older than beforeID.
func (f *FakeSource) History(ctx context.Context, channelID, beforeID int64, limit int) ([]transport.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[channelID]; ok {
		return nil, err
	}
	msgs := append([]transport.Message(nil), f.messages[channelID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	out := make([]transport.Message, 0, limit)
	for _, m := range msgs {
		if beforeID != 0 && m.ID >= beforeID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FakeRoles is a static transport.RoleResolver.
type FakeRoles struct {
	Roles map[int64][]int64 // user id -> role ids
}

func (f *FakeRoles) MemberRoles(ctx context.Context, guildID, userID int64) ([]int64, error) {
	return f.Roles[userID], nil
}
