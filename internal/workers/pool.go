// Package workers provides the small fan-out primitives the indexer hashes
// and parses with: a fixed-size pool that multiplexes one job across its
// workers, and bounded queues for work distribution and result collection.
package workers

import (
	"time"

	"lumen/internal/trace"
)

// BlockInterval is how long a driver blocks on a result queue before
// re-checking for completion.
const BlockInterval = 100 * time.Millisecond

// Pool runs one task function on a fixed number of goroutines.
type Pool struct {
	size   int
	tracer trace.Tracer
}

// NewPool creates a pool of the given size. A zero-size pool runs jobs
// inline on the caller; the indexer uses that variant while it holds the
// file table, чтобы не было конкурентных обращений к GlobalState.
func NewPool(size int, tracer trace.Tracer) *Pool {
	if size < 0 {
		size = 0
	}
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Pool{size: size, tracer: tracer}
}

// Size returns the number of workers; zero means inline execution.
func (p *Pool) Size() int { return p.size }

// MultiplexJob runs task once per worker. With zero workers the task runs
// synchronously on the caller and MultiplexJob returns after it completes;
// otherwise the workers are detached and completion is observed through the
// result queue the task feeds.
func (p *Pool) MultiplexJob(name string, task func()) {
	if p.size == 0 {
		task()
		return
	}
	for i := 0; i < p.size; i++ {
		go func() {
			span := trace.Begin(p.tracer, trace.ScopeFile, name)
			task()
			span.End("")
		}()
	}
}
