package notifications

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 32

// EventKind distinguishes broker events.
type EventKind string

const (
	// EventArrived carries a newly ingested notification.
	EventArrived EventKind = "arrived"
	// EventCount reports a changed unread count.
	EventCount EventKind = "count"
)

// Event is delivered to subscribers whenever a stream changes.
type Event struct {
	Kind         EventKind
	Stream       models.NotificationStream
	Notification *models.Notification
	Unread       int
}

// Subscriber receives events for one stream, or for all when Stream is empty.
type Subscriber struct {
	ID        string
	Stream    models.NotificationStream
	Ch        chan Event
	CreatedAt time.Time
}

// Broker fans stream events out to subscribers such as badge counters.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewBroker creates a new event broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for stream. An empty stream matches both.
func (b *Broker) Subscribe(stream models.NotificationStream) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:        uuid.NewString(),
		Stream:    stream,
		Ch:        make(chan Event, subscriberBuffer),
		CreatedAt: time.Now(),
	}
	b.subscribers[sub.ID] = sub
	b.logger.Debug("subscriber added", "subscriber_id", sub.ID, "stream", stream)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish delivers an event to every matching subscriber without blocking.
// Subscribers with a full buffer miss the event.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.Stream != "" && sub.Stream != ev.Stream {
			continue
		}
		select {
		case sub.Ch <- ev:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				"subscriber_id", sub.ID,
				"stream", ev.Stream,
				"kind", ev.Kind,
			)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}
