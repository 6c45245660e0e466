package ringbuf

import "sync"

// Buffer is a thread-safe fixed-capacity ring. Once full, each Push
// overwrites the oldest entry.
type Buffer[T any] struct {
	entries []T
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// New creates a buffer holding at most size entries
func New[T any](size int) *Buffer[T] {
	if size < 1 {
		size = 1
	}
	return &Buffer[T]{
		entries: make([]T, size),
		size:    size,
	}
}

// Push appends an entry, evicting the oldest one when full
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = v
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Items returns all entries in insertion order
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.size {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.size]
	}
	return result
}

// Recent returns the newest n entries, oldest first
func (b *Buffer[T]) Recent(n int) []T {
	items := b.Items()
	if n < 0 {
		n = 0
	}
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// Len returns the number of stored entries
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the capacity
func (b *Buffer[T]) Cap() int {
	return b.size
}

// Clear drops all entries
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.entries {
		b.entries[i] = zero
	}
	b.head = 0
	b.count = 0
}
