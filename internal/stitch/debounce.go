// Package stitch turns the noisy fragment streams produced by the capture
// channels into a clean line stream: the Stitcher reconciles typewriter
// partials into whole sentences, and the Debouncer suppresses re-emission of
// text seen recently. Both are pure logic, internally synchronized, and
// shared by every channel in a session: the same on-screen text is usually
// observed by more than one channel at once, so dedup has to be global.
package stitch

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultDebounceWindow suppresses identical re-renders of the last
	// emitted string.
	DefaultDebounceWindow = 120 * time.Millisecond
	// DefaultDedupCapacity bounds the seen-hash ring.
	DefaultDedupCapacity = 300
)

// Debouncer decides whether a candidate text is new enough to emit. It keeps
// a short-horizon last-emission record plus a bounded FIFO ring of hashes of
// everything accepted within the retention horizon.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int

	lastText string
	lastAt   time.Time

	ring    []uint64
	head    int
	size    int
	members map[uint64]struct{}
}

// NewDebouncer creates a debouncer. Non-positive arguments fall back to the
// defaults.
func NewDebouncer(window time.Duration, capacity int) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Debouncer{
		window:   window,
		capacity: capacity,
		ring:     make([]uint64, capacity),
		members:  make(map[uint64]struct{}, capacity),
	}
}

// ShouldEmit reports whether text should be forwarded to the consumer, and
// records it as seen when it should. Safe for concurrent use.
func (d *Debouncer) ShouldEmit(text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if text == d.lastText && now.Sub(d.lastAt) < d.window {
		return false
	}

	h := xxhash.Sum64String(text)
	if _, seen := d.members[h]; seen {
		return false
	}
	d.insert(h)
	d.lastText = text
	d.lastAt = now
	return true
}

// insert adds h, evicting the oldest entry at capacity. The members set and
// the ring always hold the same entries.
func (d *Debouncer) insert(h uint64) {
	if d.size == d.capacity {
		delete(d.members, d.ring[d.head])
		d.ring[d.head] = h
		d.head = (d.head + 1) % d.capacity
	} else {
		d.ring[(d.head+d.size)%d.capacity] = h
		d.size++
	}
	d.members[h] = struct{}{}
}

// Reset discards all retained state. Called at session start so text from a
// previous target cannot suppress the new session's output.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastText = ""
	d.lastAt = time.Time{}
	d.head = 0
	d.size = 0
	d.members = make(map[uint64]struct{}, d.capacity)
}

// Len returns the number of retained hashes (test hook for the ring bound).
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.members)
}
