// Package queue provides an unbounded FIFO used to hand work from I/O
// goroutines to a single consumer without ever blocking the producer.
package queue

import "sync"

// Queue is a thread-safe ring buffer that doubles its capacity when full.
// Push never blocks; Pop blocks until an item is available or the queue
// is closed.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	count  int
	closed bool

	pushed int64
	popped int64
	grows  int
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Len    int
	Cap    int
	Pushed int64
	Popped int64
	Grows  int
}

// New creates a queue with the given initial capacity (minimum 1).
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.ring) {
		q.grow()
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.pushed++
	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking while the queue is empty.
// Returns false once the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.take()
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take()
}

// Drain removes up to max items (all items if max <= 0) in FIFO order.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, _ := q.take()
		out = append(out, item)
	}
	return out
}

// Close marks the queue closed and wakes blocked consumers. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:    q.count,
		Cap:    len(q.ring),
		Pushed: q.pushed,
		Popped: q.popped,
		Grows:  q.grows,
	}
}

// take pops the head item. Must be called with lock held.
func (q *Queue[T]) take() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.popped++
	return item, true
}

// grow doubles the ring, unwrapping items to start at index 0.
// Must be called with lock held.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.ring)*2)
	n := copy(next, q.ring[q.head:])
	copy(next[n:], q.ring[:q.head])

	q.ring = next
	q.head = 0
	q.grows++
}
