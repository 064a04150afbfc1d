package observ

import (
	"sync"
	"time"
)

// LatencySink receives the measured duration of a completed latency timer.
type LatencySink func(name string, d time.Duration)

// LatencyTimer measures the time from its creation (an edit's arrival) until
// Stop, and reports it to its sink. Nothing in the session calls Stop when
// diagnostics are published; the indexer only moves, clones and cancels
// timers.
//
// When a running slow path is canceled and superseded, the superseding
// update inherits clones of the canceled update's timers: пользователь ждал
// с момента первой правки, и задержка считается от неё.
type LatencyTimer struct {
	Name string

	mu       sync.Mutex
	start    time.Time
	sink     LatencySink
	canceled bool
	stopped  bool
}

// NewLatencyTimer starts a timer that reports to sink when stopped.
func NewLatencyTimer(name string, sink LatencySink) *LatencyTimer {
	return &LatencyTimer{Name: name, start: time.Now(), sink: sink}
}

// Cancel marks the timer so that stopping it reports nothing.
func (t *LatencyTimer) Cancel() {
	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()
}

// Stop finishes the timer and reports the elapsed time unless canceled.
// Stopping twice reports once.
func (t *LatencyTimer) Stop() {
	t.mu.Lock()
	report := !t.canceled && !t.stopped && t.sink != nil
	t.stopped = true
	elapsed := time.Since(t.start)
	sink := t.sink
	name := t.Name
	t.mu.Unlock()
	if report {
		sink(name, elapsed)
	}
}

// Clone returns a fresh, uncanceled timer measuring from the same start
// moment. Cloning a timer that already fired still measures from the
// original start.
func (t *LatencyTimer) Clone() *LatencyTimer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &LatencyTimer{Name: t.Name, start: t.start, sink: t.sink}
}

// Canceled reports whether the timer was canceled.
func (t *LatencyTimer) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}
