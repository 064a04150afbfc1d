package workers

import (
	"sync/atomic"
	"time"
)

// Queue is a bounded multi-producer/multi-consumer work queue.
// Producers fill it up front; workers drain it with TryPop.
type Queue[T any] struct {
	ch chan T
}

// NewQueue creates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Push enqueues a value; returns false if the queue is full.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// TryPop dequeues without blocking; ok is false when the queue is empty.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	select {
	case v = <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.ch) }

// weighted couples a result batch with how many input items it accounts for.
type weighted[T any] struct {
	v      T
	weight int64
}

// BlockingQueue collects result batches and knows when all expected input
// items have been accounted for. Single consumer; producers are the pool's
// workers.
type BlockingQueue[T any] struct {
	ch       chan weighted[T]
	expected int64
	consumed atomic.Int64
}

// NewBlockingQueue creates a result queue expecting the given total weight.
func NewBlockingQueue[T any](expected int) *BlockingQueue[T] {
	return &BlockingQueue[T]{
		ch:       make(chan weighted[T], expected),
		expected: int64(expected),
	}
}

// Push enqueues a result batch accounting for weight input items.
// Батч с нулевым весом не двигает завершение — не пушьте такие.
func (q *BlockingQueue[T]) Push(v T, weight int) {
	q.ch <- weighted[T]{v: v, weight: int64(weight)}
}

// WaitPopTimed blocks up to d for the next batch. gotItem reports whether v
// is valid; done reports that every expected input item has been accounted
// for and the consumer may stop.
func (q *BlockingQueue[T]) WaitPopTimed(d time.Duration) (v T, gotItem bool, done bool) {
	if q.consumed.Load() >= q.expected {
		var zero T
		return zero, false, true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case it := <-q.ch:
		total := q.consumed.Add(it.weight)
		return it.v, true, total >= q.expected
	case <-timer.C:
		var zero T
		return zero, false, false
	}
}
