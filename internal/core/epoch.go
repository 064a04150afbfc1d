package core

import (
	"fmt"
	"sync"
)

// EpochStatus is a consistent view of the typechecking state.
type EpochStatus struct {
	SlowPathRunning bool
	Epoch           uint64
}

// EpochManager orders typecheck attempts between the indexer goroutine and
// the typechecker goroutine. Epochs increase strictly; a successful
// cancellation retires every epoch below the superseding one.
//
// Cancellation is cooperative: the typechecker polls CancellationRequested
// between units of work and abandons the slow path when it fires.
type EpochManager struct {
	mu       sync.Mutex
	running  bool
	epoch    uint64 // epoch of the running slow path
	cancelTo uint64 // nonzero once the running slow path is superseded
}

// NewEpochManager returns a manager with no slow path running.
func NewEpochManager() *EpochManager {
	return &EpochManager{}
}

// Status returns whether a slow path is running and at which epoch.
func (m *EpochManager) Status() EpochStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return EpochStatus{SlowPathRunning: m.running, Epoch: m.epoch}
}

// BeginSlowPath marks a slow path as running at the given epoch.
// Запускать второй slow path поверх работающего нельзя.
func (m *EpochManager) BeginSlowPath(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		panic(fmt.Sprintf("core: BeginSlowPath(%d) while epoch %d is running", epoch, m.epoch))
	}
	if epoch < m.epoch {
		panic(fmt.Sprintf("core: BeginSlowPath(%d) below current epoch %d", epoch, m.epoch))
	}
	m.running = true
	m.epoch = epoch
	m.cancelTo = 0
}

// TryCancelSlowPath atomically requests cancellation of the running slow
// path in favor of newEpoch. It succeeds at most once per running epoch,
// and only if newEpoch actually supersedes it.
func (m *EpochManager) TryCancelSlowPath(newEpoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.cancelTo != 0 || newEpoch <= m.epoch {
		return false
	}
	m.cancelTo = newEpoch
	return true
}

// CancellationRequested is the typechecker's poll: true once the slow path
// at the given epoch has been superseded.
func (m *EpochManager) CancellationRequested(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelTo != 0 && m.cancelTo > epoch
}

// FinishSlowPath marks the slow path finished and reports whether it ended
// because of cancellation.
func (m *EpochManager) FinishSlowPath(epoch uint64) (canceled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		panic("core: FinishSlowPath without a running slow path")
	}
	if m.epoch != epoch {
		panic(fmt.Sprintf("core: FinishSlowPath(%d) does not match running epoch %d", epoch, m.epoch))
	}
	canceled = m.cancelTo != 0
	m.running = false
	return canceled
}
