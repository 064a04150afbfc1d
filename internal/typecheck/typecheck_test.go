package typecheck

import (
	"testing"
	"time"

	"lumen/internal/core"
	"lumen/internal/indexer"
	"lumen/internal/pipeline"
	"lumen/internal/source"
	"lumen/internal/syntax"
	"lumen/internal/trace"
)

func snapshotWith(t *testing.T, files map[string]string) *core.GlobalState {
	t.Helper()
	gs := core.NewGlobalState(trace.Nop)
	access := gs.UnfreezeFileTable()
	for path, content := range files {
		gs.EnterFile(source.NewFile(path, []byte(content), source.FileVirtual))
	}
	access.Release()
	return gs.DeepCopy()
}

func TestRunSlowPathPublishes(t *testing.T) {
	tc := New(trace.Nop)
	snapshot := snapshotWith(t, map[string]string{
		"a.lm": "fn a() -> Int { 1 }\n",
		"b.lm": "fn b() -> Int { 2 }\nfn c() -> Int { 3 }\n",
	})

	u := &indexer.FileUpdates{Epoch: 1, EditCount: 1, UpdatedGS: snapshot}
	if !tc.RunSlowPath(u) {
		t.Fatal("uncontested slow path must complete")
	}

	snap := tc.Snapshot()
	if snap == nil || snap.Epoch != 1 {
		t.Fatalf("snapshot = %+v, want epoch 1", snap)
	}
	if snap.FileCount != 2 {
		t.Errorf("fileCount = %d, want 2", snap.FileCount)
	}
	if len(snap.Defs) != 3 {
		t.Errorf("defs = %d, want 3", len(snap.Defs))
	}
	if snapshot.Epochs.Status().SlowPathRunning {
		t.Error("slow path must clear the running flag")
	}
}

func TestRunSlowPathCooperativeCancel(t *testing.T) {
	tc := New(trace.Nop)
	snapshot := snapshotWith(t, map[string]string{
		"a.lm": "fn a() -> Int { 1 }\n",
		"b.lm": "fn b() -> Int { 2 }\n",
	})

	started := make(chan struct{})
	release := make(chan struct{})
	first := true
	tc.FileHook = func(string) {
		if first {
			first = false
			close(started)
			<-release
		}
	}

	u := &indexer.FileUpdates{Epoch: 1, EditCount: 1, UpdatedGS: snapshot}
	done := make(chan bool, 1)
	go func() { done <- tc.RunSlowPath(u) }()

	<-started
	// Правка с большей эпохой отменяет бегущий slow path.
	if !snapshot.Epochs.TryCancelSlowPath(2) {
		t.Fatal("cancellation of the running slow path must succeed")
	}
	close(release)

	select {
	case completed := <-done:
		if completed {
			t.Error("canceled slow path must not complete")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("slow path never observed the cancellation")
	}
	if tc.Snapshot() != nil {
		t.Error("canceled run must publish nothing")
	}
	if snapshot.Epochs.Status().SlowPathRunning {
		t.Error("canceled run must clear the running flag")
	}
}

func TestRunFastPathPatchesSnapshot(t *testing.T) {
	tc := New(trace.Nop)
	snapshot := snapshotWith(t, map[string]string{"a.lm": "fn a() -> Int { 1 }\n"})
	if !tc.RunSlowPath(&indexer.FileUpdates{Epoch: 1, UpdatedGS: snapshot}) {
		t.Fatal("setup slow path failed")
	}

	f := source.NewFile("a.lm", []byte("fn a() -> Int { 42 }\n"), source.FileVirtual)
	tc.RunFastPath(&indexer.FileUpdates{
		Epoch:              2,
		EditCount:          1,
		UpdatedFiles:       []*source.File{f},
		UpdatedFileIndexes: []pipeline.ParsedFile{{Tree: syntax.Scan(f, nil)}},
		CanTakeFastPath:    true,
	})

	snap := tc.Snapshot()
	if snap.Epoch != 2 {
		t.Errorf("epoch = %d, want 2", snap.Epoch)
	}
	if len(snap.Defs) != 1 {
		t.Errorf("defs = %d, want 1", len(snap.Defs))
	}
}
