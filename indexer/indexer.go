// Package indexer scans snitch channels for snitch events, both as a startup
// backfill over channel history and live as messages arrive.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/event"
	"github.com/onnwee/snitchvis/backend/telemetry"
	"github.com/onnwee/snitchvis/backend/transport"
)

const defaultPageSize = 100

// Indexer performs historic backfills of registered snitch channels.
type Indexer struct {
	Source   transport.Source
	Store    Store
	PageSize int // history page size; defaults to 100
}

// BackfillChannel scans ch's history newest-first down to the channel cursor
// (exclusive) and commits every parsed event plus the new cursor atomically.
// It returns the number of events added.
//
// The cursor always advances to the newest message in the channel, whether or
// not that message parsed as an event; an empty channel leaves the cursor
// untouched. Re-running a backfill with an up-to-date cursor adds nothing.
func (ix *Indexer) BackfillChannel(ctx context.Context, ch db.SnitchChannel) (int, error) {
	pageSize := ix.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var cursor int64
	if ch.LastIndexedID != nil {
		cursor = *ch.LastIndexedID
	}

	var (
		newest  int64
		events  []event.Event
		before  int64
		scanned int
	)
	for {
		page, err := ix.Source.History(ctx, ch.ChannelID, before, pageSize)
		if err != nil {
			return 0, fmt.Errorf("history for channel %d: %w", ch.ChannelID, err)
		}
		if len(page) == 0 {
			break
		}
		if newest == 0 {
			newest = page[0].ID
		}
		reachedCursor := false
		for _, m := range page {
			if ch.LastIndexedID != nil && m.ID <= cursor {
				reachedCursor = true
				break
			}
			scanned++
			if ev, ok := event.Parse(m.Content); ok {
				ev.MessageID = m.ID
				ev.ChannelID = m.ChannelID
				ev.GuildID = ch.GuildID
				ev.T = m.Timestamp
				events = append(events, ev)
			}
			before = m.ID
		}
		if reachedCursor || len(page) < pageSize {
			break
		}
	}
	if telemetry.MessagesScanned != nil {
		telemetry.MessagesScanned.Add(float64(scanned))
	}
	if newest == 0 {
		// Nothing in the channel; committing would invent a cursor.
		return 0, nil
	}

	// History pages arrive newest-first; store them oldest-first so event
	// ids follow event time.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if err := ix.Store.CommitBackfill(ctx, ch.ChannelID, events, newest); err != nil {
		return 0, err
	}
	if telemetry.EventsIndexed != nil {
		telemetry.EventsIndexed.Add(float64(len(events)))
	}
	return len(events), nil
}

// BackfillAll backfills every registered channel with at most concurrency
// scans in flight. A failing channel is logged and skipped; it never blocks
// the others. The returned error is non-nil only when listing channels fails
// or ctx is canceled.
func (ix *Indexer) BackfillAll(ctx context.Context, concurrency int) error {
	channels, err := ix.Store.Channels(ctx)
	if err != nil {
		return fmt.Errorf("list snitch channels: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, ch := range channels {
		g.Go(func() error {
			var (
				added int
				err   error
			)
			telemetry.TimeFunc(telemetry.BackfillDuration, func() {
				added, err = ix.BackfillChannel(ctx, ch)
			})
			if err != nil {
				failed.Add(1)
				if telemetry.ChannelsFailed != nil {
					telemetry.ChannelsFailed.Inc()
				}
				slog.Warn("channel backfill failed",
					slog.Int64("channel_id", ch.ChannelID),
					slog.Int64("guild_id", ch.GuildID),
					slog.Any("err", err))
				return nil
			}
			if telemetry.ChannelsIndexed != nil {
				telemetry.ChannelsIndexed.Inc()
			}
			slog.Info("channel backfill complete",
				slog.Int64("channel_id", ch.ChannelID),
				slog.Int("events_added", added))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		slog.Warn("startup backfill finished with failures", slog.Int64("failed_channels", n))
	}
	return nil
}
