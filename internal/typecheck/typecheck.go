// Package typecheck runs the updates the indexer produces. The slow path
// walks every file of its snapshot rebuilding the definition table and
// polls the epoch manager between files so a superseding edit can cancel
// it; the fast path patches only the changed files into the last published
// result. Checking here is deliberately shallow — the package exists to
// honor the arbitration contract, not to be a real typechecker.
package typecheck

import (
	"context"
	"sync"

	"lumen/internal/core"
	"lumen/internal/indexer"
	"lumen/internal/syntax"
	"lumen/internal/trace"
)

// Snapshot is the published result of a completed typecheck.
type Snapshot struct {
	Epoch     uint64
	FileCount int
	// Defs maps definition names to their normalized signatures.
	Defs map[string]string
}

// Typechecker consumes FileUpdates on its own goroutine.
type Typechecker struct {
	tracer trace.Tracer

	// FileHook, when set, runs before each file of a slow path; tests use
	// it to hold the slow path open while an edit races it.
	FileHook func(path string)

	mu       sync.Mutex
	snapshot *Snapshot
}

// New creates a typechecker.
func New(tracer trace.Tracer) *Typechecker {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Typechecker{tracer: tracer}
}

// Snapshot returns the last published result, or nil.
func (tc *Typechecker) Snapshot() *Snapshot {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.snapshot
}

func (tc *Typechecker) publish(s *Snapshot) {
	tc.mu.Lock()
	tc.snapshot = s
	tc.mu.Unlock()
}

// Run consumes updates until the channel closes or the context ends.
func (tc *Typechecker) Run(ctx context.Context, updates <-chan *indexer.FileUpdates) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.UpdatedGS != nil {
				tc.RunSlowPath(u)
			} else {
				tc.RunFastPath(u)
			}
		}
	}
}

// RunSlowPath rebuilds the definition table across every file of the
// update's snapshot. Returns false if the attempt was canceled; a canceled
// attempt publishes nothing, so its partial effects stay invisible.
func (tc *Typechecker) RunSlowPath(u *indexer.FileUpdates) bool {
	gs := u.UpdatedGS
	if gs == nil {
		panic("typecheck: slow path without a snapshot")
	}
	epochs := gs.Epochs
	span := trace.Begin(tc.tracer, trace.ScopeSession, "typecheck.slow_path")

	epochs.BeginSlowPath(u.Epoch)
	defs := make(map[string]string)
	files := gs.Files()
	for ref := core.FileRef(1); int(ref) < len(files); ref++ {
		f := files[ref]
		if f == nil {
			continue
		}
		if tc.FileHook != nil {
			tc.FileHook(f.Path)
		}
		// Кооперативная отмена: проверяем эпоху между файлами.
		if epochs.CancellationRequested(u.Epoch) {
			epochs.FinishSlowPath(u.Epoch)
			span.End("canceled")
			return false
		}
		collectDefs(defs, f.Path, syntax.Scan(f, nil))
	}
	canceled := epochs.FinishSlowPath(u.Epoch)
	if canceled {
		span.End("canceled")
		return false
	}

	tc.publish(&Snapshot{
		Epoch:     u.Epoch,
		FileCount: len(files) - 1,
		Defs:      defs,
	})
	span.End("")
	return true
}

// RunFastPath patches the changed files into the last published snapshot.
// The global definition table is frozen by construction: обновлению с
// изменёнными определениями сюда нельзя.
func (tc *Typechecker) RunFastPath(u *indexer.FileUpdates) {
	span := trace.Begin(tc.tracer, trace.ScopeSession, "typecheck.fast_path")
	defer span.End("")

	tc.mu.Lock()
	defer tc.mu.Unlock()
	base := tc.snapshot
	if base == nil {
		// Fast path before any slow path finished; nothing to patch.
		return
	}
	defs := make(map[string]string, len(base.Defs))
	for k, v := range base.Defs {
		defs[k] = v
	}
	for i, f := range u.UpdatedFiles {
		var tree *syntax.Tree
		if i < len(u.UpdatedFileIndexes) && u.UpdatedFileIndexes[i].Tree != nil {
			tree = u.UpdatedFileIndexes[i].Tree
		} else {
			tree = syntax.Scan(f, nil)
		}
		collectDefs(defs, f.Path, tree)
	}
	tc.snapshot = &Snapshot{Epoch: u.Epoch, FileCount: base.FileCount, Defs: defs}
}

func collectDefs(defs map[string]string, path string, tree *syntax.Tree) {
	for _, d := range tree.Defs {
		defs[path+"\x00"+d.Name] = d.Sig
	}
}
