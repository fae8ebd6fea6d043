package events

import (
	"context"
	"strconv"
	"testing"
	"time"

	"billfactor/core/types"
)

func testEvent(i int) *types.Event {
	return &types.Event{Type: "test.event", Attributes: map[string]string{"n": strconv.Itoa(i)}}
}

func TestFeedDeliversInOrder(t *testing.T) {
	feed := NewFeed()
	ch, cancel, backlog, err := feed.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(backlog))
	}

	feed.Publish([]*types.Event{testEvent(1), nil, testEvent(2)})
	for want := 1; want <= 2; want++ {
		select {
		case update := <-ch:
			if update.Sequence != uint64(want) || update.Cursor != strconv.Itoa(want) {
				t.Fatalf("unexpected position %d/%s", update.Sequence, update.Cursor)
			}
			if update.Event.Attributes["n"] != strconv.Itoa(want) {
				t.Fatalf("unexpected event %+v", update.Event)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d", want)
		}
	}
}

func TestFeedBacklogAfterCursor(t *testing.T) {
	feed := NewFeed()
	feed.Publish([]*types.Event{testEvent(1), testEvent(2), testEvent(3)})

	_, cancel, backlog, err := feed.Subscribe(context.Background(), "1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 2 || backlog[0].Sequence != 2 || backlog[1].Sequence != 3 {
		t.Fatalf("unexpected backlog %+v", backlog)
	}

	if _, _, _, err := feed.Subscribe(context.Background(), "abc"); err == nil {
		t.Fatalf("expected invalid cursor error")
	}
}

func TestFeedHistoryIsBounded(t *testing.T) {
	feed := NewFeed()
	batch := make([]*types.Event, 0, feedHistoryLimit+10)
	for i := 0; i < feedHistoryLimit+10; i++ {
		batch = append(batch, testEvent(i))
	}
	feed.Publish(batch)

	_, cancel, backlog, err := feed.Subscribe(context.Background(), "0")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != feedHistoryLimit {
		t.Fatalf("expected %d retained updates, got %d", feedHistoryLimit, len(backlog))
	}
	if backlog[0].Sequence != 11 {
		t.Fatalf("expected oldest retained sequence 11, got %d", backlog[0].Sequence)
	}
}

func TestFeedSlowSubscriberDoesNotBlock(t *testing.T) {
	feed := NewFeed()
	_, cancel, _, err := feed.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < feedBufferSize*4; i++ {
			feed.Publish([]*types.Event{testEvent(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
}

func TestFeedCancelClosesChannel(t *testing.T) {
	feed := NewFeed()
	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, _, err := feed.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if feed.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}
	stop()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context cancel")
	}
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestBufferDrain(t *testing.T) {
	var buf Buffer
	buf.Emit(plainEvent("a"))
	buf.Emit(plainEvent("b"))
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events")
	}
	drained := buf.Drain()
	if len(drained) != 2 || drained[0].Type != "a" || drained[1].Type != "b" {
		t.Fatalf("unexpected drain %+v", drained)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not emptied")
	}
	buf.Emit(plainEvent("c"))
	buf.Reset()
	if len(buf.Drain()) != 0 {
		t.Fatalf("reset did not drop events")
	}
}

type plainEvent string

func (p plainEvent) EventType() string { return string(p) }

func TestFeedPublishSurvivesConcurrentCancel(t *testing.T) {
	feed := NewFeed()
	done := make(chan struct{})
	panicked := make(chan interface{}, 1)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				panicked <- r
			}
		}()
		for i := 0; i < 20_000; i++ {
			feed.Publish([]*types.Event{testEvent(i)})
		}
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			_, cancel, _, err := feed.Subscribe(context.Background(), "")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			cancel()
		}
	}
	select {
	case r := <-panicked:
		t.Fatalf("publish panicked: %v", r)
	default:
	}
	if n := feed.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}
