// Package history keeps a bounded in-memory window of recent sensor
// readings per device. The window is a fixed-capacity ring: appends past
// capacity evict the oldest reading. Nothing here is durable; restart
// loses the window.
package history

import (
	"sync"

	"github.com/c360/scentstream/scent"
)

// DefaultCapacity is the number of readings retained per device when no
// capacity is configured.
const DefaultCapacity = 100

// Stats is a snapshot of a ring's counters.
type Stats struct {
	Appended uint64 `json:"appended"`
	Evicted  uint64 `json:"evicted"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

// Ring is a thread-safe fixed-capacity FIFO of readings for one device.
type Ring struct {
	mu       sync.RWMutex
	items    []scent.Reading
	capacity int
	size     int
	head     int // next write position

	appended uint64
	evicted  uint64
}

// NewRing creates a ring holding up to capacity readings. A capacity of
// zero or less falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		items:    make([]scent.Reading, capacity),
		capacity: capacity,
	}
}

// Append adds a reading, evicting the oldest when the ring is full.
func (r *Ring) Append(reading scent.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = reading
	r.head = (r.head + 1) % r.capacity
	r.appended++

	if r.size == r.capacity {
		r.evicted++
		return
	}
	r.size++
}

// Latest returns the most recently appended reading, if any.
func (r *Ring) Latest() (scent.Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return scent.Reading{}, false
	}
	idx := (r.head - 1 + r.capacity) % r.capacity
	return r.items[idx], true
}

// Slice returns up to limit of the most recent readings in chronological
// order (oldest first). A limit of zero or less, or one beyond the current
// size, returns everything retained. The returned slice is a copy.
func (r *Ring) Slice(limit int) []scent.Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}

	out := make([]scent.Reading, n)
	// Oldest retained reading sits n positions behind the write head.
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// Len returns the number of readings currently retained.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of readings the ring retains.
func (r *Ring) Capacity() int {
	return r.capacity // immutable after construction
}

// Stats returns a snapshot of the ring's counters.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Appended: r.appended,
		Evicted:  r.evicted,
		Size:     r.size,
		Capacity: r.capacity,
	}
}
