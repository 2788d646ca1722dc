// Package events broadcasts store state changes to any number of
// subscribers. Publishing never blocks the store: a subscriber that falls
// behind loses events and is expected to re-read the store state.
package events

import (
	"sync"
	"time"
)

// Kind names what happened. The values double as AMQP routing keys.
type Kind string

const (
	CollectionFetched  Kind = "collection:fetched"
	CollectionRestored Kind = "collection:restored"
	RecordImported     Kind = "record:imported"
	DeleteStarted      Kind = "delete:started"
	RecordDeleted      Kind = "record:deleted"
	OperationFailed    Kind = "operation:failed"
	StatsUpdated       Kind = "stats:updated"
	ReconcileScheduled Kind = "reconcile:scheduled"
	StateCleared       Kind = "state:cleared"
)

// Event is a single state change in one store.
type Event struct {
	Store    string
	Kind     Kind
	Op       string // operation that caused the change
	RecordID int64  // set for delete events
	Count    int    // collection length after the change
	Err      error  // set for OperationFailed
	At       time.Time
}

// DefaultBuffer is the subscriber channel capacity used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 16

// Bus fans events out to subscribers. The zero value is ready to use.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer and
// reports how many subscribers missed it.
func (b *Bus) Publish(e Event) (dropped int) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}

// Close unregisters and closes every subscriber. Later subscriptions get
// an already closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
