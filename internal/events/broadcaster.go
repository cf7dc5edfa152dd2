package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const subscriberBuffer = 256

// Broadcaster fans machine events out to subscribers and remembers the latest
// value of every non-transient event so late subscribers can catch up.
type Broadcaster struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan Event
	latest      map[Name]Event
	order       []Name
	closed      bool
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		logger:      logger,
		subscribers: make(map[uuid.UUID]chan Event),
		latest:      make(map[Name]Event),
	}
}

// Publish records e and delivers it to every subscriber. Delivery never blocks:
// a subscriber with a full buffer misses the event.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if !e.Name.Transient() {
		if _, seen := b.latest[e.Name]; !seen {
			b.order = append(b.order, e.Name)
		}
		b.latest[e.Name] = e
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event",
				zap.String("subscriber", id.String()),
				zap.String("event", string(e.Name)))
		}
	}
}

// Subscribe registers a new subscriber. The returned snapshot holds the latest
// value of each non-transient event in first-seen order; nothing published
// after the snapshot is missing from the channel.
func (b *Broadcaster) Subscribe() (uuid.UUID, <-chan Event, []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return id, ch, nil
	}
	b.subscribers[id] = ch

	return id, ch, b.snapshotLocked()
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Latest returns the replay snapshot without subscribing.
func (b *Broadcaster) Latest() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *Broadcaster) snapshotLocked() []Event {
	snapshot := make([]Event, 0, len(b.order))
	for _, name := range b.order {
		snapshot = append(snapshot, b.latest[name])
	}
	return snapshot
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
