package core

import (
	"sync"
	"testing"
)

func TestEpochManagerLifecycle(t *testing.T) {
	m := NewEpochManager()

	if st := m.Status(); st.SlowPathRunning {
		t.Fatal("fresh manager must be idle")
	}
	// Отменять нечего.
	if m.TryCancelSlowPath(5) {
		t.Error("cancel with no slow path must fail")
	}

	m.BeginSlowPath(3)
	st := m.Status()
	if !st.SlowPathRunning || st.Epoch != 3 {
		t.Fatalf("status = %+v, want running at epoch 3", st)
	}
	if m.CancellationRequested(3) {
		t.Error("no cancellation requested yet")
	}
	if canceled := m.FinishSlowPath(3); canceled {
		t.Error("uncanceled run must finish clean")
	}
	if m.Status().SlowPathRunning {
		t.Error("finish must clear the running flag")
	}
}

func TestTryCancelSlowPathRules(t *testing.T) {
	m := NewEpochManager()
	m.BeginSlowPath(3)

	if m.TryCancelSlowPath(3) {
		t.Error("an equal epoch does not supersede")
	}
	if m.TryCancelSlowPath(2) {
		t.Error("an older epoch does not supersede")
	}
	if !m.TryCancelSlowPath(4) {
		t.Error("a newer epoch must cancel")
	}
	// Не более одной отмены на запущенную эпоху.
	if m.TryCancelSlowPath(5) {
		t.Error("second cancellation of the same run must fail")
	}
	if !m.CancellationRequested(3) {
		t.Error("the running epoch must observe the cancellation")
	}
	if canceled := m.FinishSlowPath(3); !canceled {
		t.Error("finish must report the cancellation")
	}

	// Следующий slow path начинает с чистого листа.
	m.BeginSlowPath(4)
	if m.CancellationRequested(4) {
		t.Error("new run must not inherit the old cancellation")
	}
	m.FinishSlowPath(4)
}

func TestTryCancelSlowPathAtomicUnderRace(t *testing.T) {
	m := NewEpochManager()
	m.BeginSlowPath(1)

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.TryCancelSlowPath(uint64(2 + i))
		}()
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("cancellation succeeded %d times, want exactly once", wins)
	}
}
