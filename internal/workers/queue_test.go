package workers

import (
	"sync/atomic"
	"testing"
	"time"

	"lumen/internal/trace"
)

func TestQueueDrain(t *testing.T) {
	q := NewQueue[int](4)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d into a queue with room failed", i)
		}
	}
	if q.Push(4) {
		t.Error("push into a full queue must fail")
	}

	seen := 0
	for _, ok := q.TryPop(); ok; _, ok = q.TryPop() {
		seen++
	}
	if seen != 4 {
		t.Errorf("popped %d items, want 4", seen)
	}
}

func TestBlockingQueueCompletion(t *testing.T) {
	q := NewBlockingQueue[[]int](10)

	// Два продюсера закрывают по половине веса.
	go q.Push([]int{1, 2}, 5)
	go q.Push([]int{3}, 5)

	total := 0
	deadline := time.Now().Add(5 * time.Second)
	for {
		batch, gotItem, done := q.WaitPopTimed(10 * time.Millisecond)
		if gotItem {
			total += len(batch)
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue never reported completion")
		}
	}
	if total != 3 {
		t.Errorf("received %d results, want 3", total)
	}
}

func TestBlockingQueueTimeout(t *testing.T) {
	q := NewBlockingQueue[int](1)
	_, gotItem, done := q.WaitPopTimed(5 * time.Millisecond)
	if gotItem || done {
		t.Error("empty queue must time out without item or completion")
	}
}

func TestPoolInlineWhenEmpty(t *testing.T) {
	pool := NewPool(0, trace.Nop)
	ran := false
	pool.MultiplexJob("test", func() { ran = true })
	// Нулевой пул выполняет задачу синхронно.
	if !ran {
		t.Error("zero-size pool must run the task inline")
	}
}

func TestPoolMultiplexesWorkers(t *testing.T) {
	const size = 3
	pool := NewPool(size, trace.Nop)

	var started atomic.Int32
	resultq := NewBlockingQueue[int](size)
	pool.MultiplexJob("test", func() {
		started.Add(1)
		resultq.Push(1, 1)
	})

	done := false
	deadline := time.Now().Add(5 * time.Second)
	for !done {
		_, _, done = resultq.WaitPopTimed(10 * time.Millisecond)
		if time.Now().After(deadline) {
			t.Fatal("workers never completed")
		}
	}
	if started.Load() != size {
		t.Errorf("task ran on %d workers, want %d", started.Load(), size)
	}
}
