package forwarder

import (
	"sync"

	audit "shareledger/pkg/platform/audit"
)

// RingBuffer is a bounded, thread-safe buffer of entries awaiting forwarding.
// When full, the oldest entries are dropped to make room for new ones.
type RingBuffer struct {
	mu       sync.Mutex
	entries  []audit.Entry
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RingBuffer{
		entries:  make([]audit.Entry, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an entry, dropping the oldest if necessary. It reports
// whether an entry was dropped.
func (b *RingBuffer) Enqueue(entry audit.Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := false
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// DequeueBatch removes up to n entries, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []audit.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	if n > b.count {
		n = b.count
	}

	result := make([]audit.Entry, n)
	for i := 0; i < n; i++ {
		result[i] = b.entries[b.tail]
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n

	return result
}

// Len returns the number of buffered entries.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the number of entries evicted since creation.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
