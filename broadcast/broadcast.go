// Package broadcast fans pipeline events out to live subscribers. The
// producer never blocks: each subscriber gets a buffered channel and a
// full buffer drops that subscriber's oldest event to make room for the
// new one. Slow or dead subscribers only ever lose their own events.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/scentstream/metric"
	"github.com/c360/scentstream/scent"
)

// DefaultBufferSize is the per-subscriber event buffer depth.
const DefaultBufferSize = 64

// Subscriber is one registered event consumer. Receive from Events
// until it is closed by Unsubscribe or Broadcaster.Close.
type Subscriber struct {
	id      string
	ch      chan scent.Event
	dropped atomic.Uint64
}

// ID returns the subscriber's unique handle.
func (s *Subscriber) ID() string {
	return s.id
}

// Events is the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan scent.Event {
	return s.ch
}

// Dropped returns how many events were discarded because this
// subscriber's buffer was full.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster is a thread-safe multi-subscriber fan-out. The zero value
// is not usable; use New.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool

	bufferSize int
	logger     *slog.Logger
	metrics    *metric.Metrics

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Broadcaster with the given options.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[string]*Subscriber),
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. Events published strictly after
// Subscribe returns are guaranteed to be offered to it.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.New().String(),
		ch: make(chan scent.Event, b.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SetSubscriberCount(count)
	}
	b.logger.Debug("subscriber registered",
		"component", "broadcaster",
		"subscriber", sub.id,
		"subscribers", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// at any time, including twice or concurrently with Publish.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if _, ok := b.subs[sub.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub.id)
	count := len(b.subs)
	// Closing under the write lock is safe: sends only happen while the
	// read lock is held.
	close(sub.ch)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SetSubscriberCount(count)
	}
	b.logger.Debug("subscriber removed",
		"component", "broadcaster",
		"subscriber", sub.id,
		"dropped", sub.Dropped(),
		"subscribers", count)
}

// Publish offers an event to every current subscriber without ever
// blocking the caller. A subscriber with a full buffer loses its oldest
// buffered event.
func (b *Broadcaster) Publish(event scent.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	if b.metrics != nil {
		b.metrics.RecordEventPublished(string(event.Type))
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		// Buffer full: evict the oldest event, then push the new one.
		// Both operations stay non-blocking in case a reader races us.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- event:
		default:
		}

		sub.dropped.Add(1)
		b.dropped.Add(1)
		if b.metrics != nil {
			b.metrics.RecordEventDropped(string(event.Type))
		}
	}
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns total published and dropped event counts.
func (b *Broadcaster) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Close removes all subscribers and rejects further publishes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}

	if b.metrics != nil {
		b.metrics.SetSubscriberCount(0)
	}
	b.logger.Info("broadcaster closed",
		"component", "broadcaster",
		"published", b.published.Load(),
		"dropped", b.dropped.Load())
}
