package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(testLogger())

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()
	require.Equal(t, 2, b.Subscribers())

	b.Publish("trade_executed", map[string]string{"market_id": "m1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "trade_executed", ev.Type)
			assert.False(t, ev.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBroadcaster_CancelRemovesSubscriber(t *testing.T) {
	b := NewBroadcaster(testLogger())

	ch, cancel := b.Subscribe()
	cancel()
	cancel() // second cancel is harmless
	assert.Equal(t, 0, b.Subscribers())

	b.Publish("forecast_created", nil)
	select {
	case ev, ok := <-ch:
		require.True(t, ok)
		t.Fatalf("cancelled subscriber received %q", ev.Type)
	default:
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(testLogger())

	ch, cancel := b.Subscribe()
	defer cancel()

	// Overfill the buffer; Publish must return regardless.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			b.Publish("task_finished", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, subscriberBuffer, "buffer holds exactly its capacity, the rest dropped")
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(testLogger())
	assert.NotPanics(t, func() { b.Publish("task_submitted", nil) })
}
