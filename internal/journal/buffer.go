package journal

import (
	"sync"
)

// Buffer is a mutex-guarded ring that doubles its capacity when it
// reaches 70% full, so producers never block and never drop. Consumers
// poll with TryReceive or DrainTo; there is no blocking receive.
type Buffer[T any] struct {
	mu       sync.Mutex
	ring     []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	enqueued int64
	dequeued int64
	grows    int
}

// BufferStats is a point-in-time snapshot of buffer counters.
type BufferStats struct {
	Len      int
	Cap      int
	Enqueued int64
	Dequeued int64
	Grows    int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](initial int) *Buffer[T] {
	if initial < 1 {
		initial = 1
	}
	return &Buffer[T]{
		ring:     make([]T, initial),
		capacity: initial,
	}
}

// Send appends an item, growing the ring first when the fill level
// crosses the threshold. Returns false once the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.ring[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.enqueued++
	return true
}

// TryReceive pops the oldest item without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// DrainTo pops up to max items in order; max <= 0 drains everything.
func (b *Buffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.popLocked()
	}
	return out
}

// Close stops accepting new items. Items already buffered stay
// drainable.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current ring capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:      b.count,
		Cap:      b.capacity,
		Enqueued: b.enqueued,
		Dequeued: b.dequeued,
		Grows:    b.grows,
	}
}

// popLocked removes and returns the head item. Caller holds mu and has
// checked count > 0.
func (b *Buffer[T]) popLocked() T {
	item := b.ring[b.head]
	var zero T
	b.ring[b.head] = zero // Release the reference
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.dequeued++
	return item
}

// grow doubles the ring, unwrapping the contents to the front. Caller
// holds mu.
func (b *Buffer[T]) grow() {
	bigger := make([]T, b.capacity*2)
	if b.count > 0 {
		if b.head < b.tail {
			copy(bigger, b.ring[b.head:b.tail])
		} else {
			n := copy(bigger, b.ring[b.head:])
			copy(bigger[n:], b.ring[:b.tail])
		}
	}

	b.ring = bigger
	b.head = 0
	b.tail = b.count
	b.capacity *= 2
	b.grows++
}
