// Package events fans hub and agent events out to connected dashboard
// clients over Server-Sent Events.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event is one broadcast message. Data must be JSON-marshallable.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

const subscriberBuffer = 16

// Broadcaster delivers events to all current subscribers. Sends never
// block: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new client. The returned cancel func must be called
// when the client disconnects.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish sends an event to every subscriber without blocking.
func (b *Broadcaster) Publish(eventType string, data any) {
	ev := Event{Type: eventType, Data: data, Time: time.Now().UTC()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Slow client: drop rather than stall the hub's notifier.
			b.logger.Warn("dropping event for slow subscriber",
				slog.String("type", eventType))
		}
	}
}

// Subscribers reports the number of connected clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
