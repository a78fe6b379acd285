package indexer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/snitchvis/backend/event"
	"github.com/onnwee/snitchvis/backend/telemetry"
	"github.com/onnwee/snitchvis/backend/transport"
)

// State is the coordinator's processing mode.
type State int

const (
	// StateDeferring queues every incoming message while the startup
	// backfill runs.
	StateDeferring State = iota
	// StateDraining processes queued messages; new arrivals still queue
	// behind them so ordering is preserved.
	StateDraining
	// StateLive processes messages as they arrive.
	StateLive
)

func (s State) String() string {
	switch s {
	case StateDeferring:
		return "deferring"
	case StateDraining:
		return "draining"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}

// Coordinator serializes the startup backfill against live message traffic.
// Messages arriving before the backfill finishes are queued and drained in
// arrival order; only when the queue is observed empty does the coordinator
// go live. This closes the race where a message arriving mid-backfill would
// be either dropped or double-indexed.
type Coordinator struct {
	indexer *Indexer
	store   Store

	mu    sync.Mutex
	state State
	queue []transport.Message

	chanMu   sync.Mutex
	chanLock map[int64]*sync.Mutex
}

// NewCoordinator returns a coordinator in the deferring state.
func NewCoordinator(ix *Indexer) *Coordinator {
	return &Coordinator{
		indexer:  ix,
		store:    ix.Store,
		state:    StateDeferring,
		chanLock: make(map[int64]*sync.Mutex),
	}
}

// State reports the current processing mode.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueDepth reports how many messages are waiting for the drain.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// HandleMessage is the single entry point for incoming channel messages.
// Before the coordinator is live the message is queued; after, it is
// processed immediately.
func (c *Coordinator) HandleMessage(ctx context.Context, msg transport.Message) error {
	c.mu.Lock()
	if c.state != StateLive {
		c.queue = append(c.queue, msg)
		depth := len(c.queue)
		c.mu.Unlock()
		telemetry.SetIndexQueueDepth(depth)
		return nil
	}
	c.mu.Unlock()
	return c.process(ctx, msg)
}

// Run executes the startup backfill, drains the deferred queue, and switches
// to live processing. It blocks until the coordinator is live or ctx is
// canceled.
func (c *Coordinator) Run(ctx context.Context, concurrency int) error {
	telemetry.SetIndexState(int(StateDeferring))
	if err := c.indexer.BackfillAll(ctx, concurrency); err != nil {
		return err
	}

	telemetry.SetIndexState(int(StateDraining))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Emptiness is re-checked under the same lock HandleMessage
		// enqueues under, so a message that slips in during the drain
		// is seen before going live.
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.state = StateLive
			c.mu.Unlock()
			break
		}
		c.state = StateDraining
		msg := c.queue[0]
		c.queue = c.queue[1:]
		depth := len(c.queue)
		c.mu.Unlock()
		telemetry.SetIndexQueueDepth(depth)

		if err := c.process(ctx, msg); err != nil {
			slog.Warn("deferred message processing failed",
				slog.Int64("channel_id", msg.ChannelID),
				slog.Int64("message_id", msg.ID),
				slog.Any("err", err))
		}
	}
	telemetry.SetIndexState(int(StateLive))
	slog.Info("indexing live")
	return nil
}

// process indexes one message from live traffic or the drain queue.
func (c *Coordinator) process(ctx context.Context, msg transport.Message) error {
	unlock := c.lockChannel(msg.ChannelID)
	defer unlock()

	ch, ok, err := c.store.Channel(ctx, msg.ChannelID)
	if err != nil {
		return err
	}
	// Unregistered channels are ignored. A registered channel that was
	// never backfilled is skipped too: setting a cursor here would make a
	// later backfill trust history it never scanned.
	if !ok || ch.LastIndexedID == nil {
		return nil
	}
	// A message deferred during the backfill is usually also in the history
	// the backfill scanned; the cursor already covers it, so the queued copy
	// must be discarded or its event would be inserted twice.
	if msg.ID <= *ch.LastIndexedID {
		return nil
	}
	if telemetry.MessagesScanned != nil {
		telemetry.MessagesScanned.Inc()
	}
	if ev, matched := event.Parse(msg.Content); matched {
		ev.MessageID = msg.ID
		ev.ChannelID = msg.ChannelID
		ev.GuildID = ch.GuildID
		ev.T = msg.Timestamp
		if err := c.store.InsertEvent(ctx, ev); err != nil {
			return err
		}
		if telemetry.EventsIndexed != nil {
			telemetry.EventsIndexed.Inc()
		}
	}
	// Every scanned message advances the cursor, matching backfill
	// behavior; otherwise a long run of unmatched chatter would be
	// re-scanned on the next restart.
	return c.store.AdvanceCursor(ctx, msg.ChannelID, msg.ID)
}

func (c *Coordinator) lockChannel(channelID int64) func() {
	c.chanMu.Lock()
	l, ok := c.chanLock[channelID]
	if !ok {
		l = new(sync.Mutex)
		c.chanLock[channelID] = l
	}
	c.chanMu.Unlock()
	l.Lock()
	return l.Unlock
}
