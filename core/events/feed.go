package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"billfactor/core/types"
)

const (
	feedHistoryLimit = 2048
	feedBufferSize   = 32
)

// Update is a committed event tagged with its position in the feed.
type Update struct {
	Sequence uint64
	Cursor   string
	Event    *types.Event
}

// Feed fans out committed events to subscribers. Slow subscribers miss
// updates rather than blocking publication; they can recover the gap from the
// retained history by resubscribing with their last cursor.
type Feed struct {
	mu      sync.Mutex
	seq     uint64
	nextSub uint64
	subs    map[uint64]chan Update
	history []Update
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]chan Update)}
}

// Publish appends the events to the feed in order.
func (f *Feed) Publish(evts []*types.Event) {
	if f == nil || len(evts) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]Update, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		f.seq++
		update := Update{Sequence: f.seq, Cursor: strconv.FormatUint(f.seq, 10), Event: evt.Clone()}
		batch = append(batch, update)
		f.history = append(f.history, update)
	}
	if len(f.history) > feedHistoryLimit {
		excess := len(f.history) - feedHistoryLimit
		trimmed := make([]Update, feedHistoryLimit)
		copy(trimmed, f.history[excess:])
		f.history = trimmed
	}
	// Sends happen under f.mu so cancel cannot close a channel mid-send.
	// None of them block.
	for _, update := range batch {
		for _, ch := range f.subs {
			select {
			case ch <- Update{Sequence: update.Sequence, Cursor: update.Cursor, Event: update.Event.Clone()}:
			default:
			}
		}
	}
}

// Subscribe registers a subscriber for events published after the supplied
// cursor. An empty cursor subscribes to new events only. The returned backlog
// holds retained events after the cursor. The subscription ends when ctx is
// cancelled or the cancel function is called.
func (f *Feed) Subscribe(ctx context.Context, cursor string) (<-chan Update, func(), []Update, error) {
	if f == nil {
		return nil, nil, nil, fmt.Errorf("events: feed not initialised")
	}
	var after uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("events: invalid cursor %q", cursor)
		}
		after = parsed
	}

	ch := make(chan Update, feedBufferSize)
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[uint64]chan Update)
	}
	f.nextSub++
	id := f.nextSub
	f.subs[id] = ch
	var backlog []Update
	if cursor != "" {
		for _, update := range f.history {
			if update.Sequence > after {
				backlog = append(backlog, Update{Sequence: update.Sequence, Cursor: update.Cursor, Event: update.Event.Clone()})
			}
		}
	}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if existing, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(existing)
			}
			f.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, backlog, nil
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
