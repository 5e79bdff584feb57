// Package bus is a minimal synchronous pub/sub used to fan out state
// changes (balances, listings, payments) to interested components.
package bus

import (
	"log/slog"
	"sync"
)

// TopicAll receives every publish in addition to the named topic's own
// subscribers.
const TopicAll = "all"

// Handler consumes one published event.
type Handler func(topic string, payload interface{})

type subscriber struct {
	id int64
	fn Handler
}

// Bus dispatches events synchronously, in registration order. Each handler
// runs inside its own failure boundary: a panicking handler is logged and
// the remaining handlers still run.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]subscriber
	nextID int64
	log    *slog.Logger
}

// Option configures the bus
type Option func(*Bus)

// WithLogger sets the logger used for handler panics.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) { b.log = log }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		topics: make(map[string][]subscriber),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn under topic and returns its unsubscribe func.
// Unsubscribing twice is harmless. Handlers registered while a publish is
// in progress do not receive that publish.
func (b *Bus) Subscribe(topic string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.topics[topic]
		for i, sub := range subs {
			if sub.id == id {
				b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish notifies topic's subscribers and then the TopicAll subscribers,
// synchronously, in registration order.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	// Snapshot under the lock so handlers may subscribe/unsubscribe freely.
	handlers := make([]subscriber, 0, len(b.topics[topic])+len(b.topics[TopicAll]))
	handlers = append(handlers, b.topics[topic]...)
	if topic != TopicAll {
		handlers = append(handlers, b.topics[TopicAll]...)
	}
	b.mu.Unlock()

	for _, sub := range handlers {
		b.dispatch(topic, payload, sub)
	}
}

// dispatch runs one handler, containing its panic.
func (b *Bus) dispatch(topic string, payload interface{}, sub subscriber) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked", "topic", topic, "panic", r)
		}
	}()
	sub.fn(topic, payload)
}
