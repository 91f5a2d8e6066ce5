package pipeline

import (
	"sync"

	"shopwatch/internal/ledger"
)

// EventBus provides pub/sub for raised alerts
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	channel chan ledger.Entry
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe returns a channel that receives alerts and an unsubscribe
// function. A slow subscriber misses alerts rather than blocking.
func (b *EventBus) Subscribe(bufferSize int) (<-chan ledger.Entry, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan ledger.Entry, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish sends an alert to all subscribers
func (b *EventBus) Publish(entry ledger.Entry) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub.channel <- entry:
		default:
			// Channel full, skip this alert
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		close(sub.channel)
		delete(b.subscribers, sub)
	}
}
