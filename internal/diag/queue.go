package diag

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// Queue collects diagnostics produced by indexing passes.
//
// The real queue of a language-server session is consumed by exactly one
// goroutine; Push asserts that affinity. Operations that index on a
// different goroutine (bulk initialize, re-index inside commitEdit) swap in
// a throwaway queue with IgnoreFlushes set, drain it, and discard the
// contents: индексатор — не канал доставки диагностик тайпчека.
type Queue struct {
	// IgnoreFlushes disables the single-consumer affinity check; set on
	// throwaway queues that live for one indexing operation.
	IgnoreFlushes bool

	mu      sync.Mutex
	pending []Diagnostic
	owner   uint64
}

// NewQueue creates a queue owned by the calling goroutine.
func NewQueue() *Queue {
	return &Queue{owner: goroutineID()}
}

// NewThrowawayQueue creates a queue that accepts pushes from any goroutine
// and is expected to be drained and discarded.
func NewThrowawayQueue() *Queue {
	q := NewQueue()
	q.IgnoreFlushes = true
	return q
}

// Push appends a diagnostic. On an affinity-checked queue, pushing from a
// goroutine other than the owner is a contract violation.
func (q *Queue) Push(d Diagnostic) {
	if !q.IgnoreFlushes {
		if gid := goroutineID(); gid != q.owner {
			panic(fmt.Sprintf("diag: queue owned by goroutine %d pushed from %d", q.owner, gid))
		}
	}
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
}

// PushBag appends every diagnostic of the bag.
func (q *Queue) PushBag(b *Bag) {
	for _, d := range b.Items() {
		q.Push(d)
	}
}

// Drain removes and returns all pending diagnostics.
func (q *Queue) Drain() []Diagnostic {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	return out
}

// Len returns the number of pending diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// goroutineID извлекает ID горутины из runtime.Stack.
// Используется только для assert'а принадлежности, не для логики.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// формат: "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
