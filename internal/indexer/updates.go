package indexer

import (
	"lumen/internal/core"
	"lumen/internal/observ"
	"lumen/internal/pipeline"
	"lumen/internal/source"
)

// Edit is one batch of file contents delivered by the editing protocol.
// MergeCount counts edits folded together upstream before delivery.
type Edit struct {
	Epoch      uint64
	MergeCount int
	Updates    []*source.File
	// DiagnosticLatencyTimers are the latency timers started when each
	// folded edit arrived; the indexer moves, clones and cancels them but
	// does not stop them.
	DiagnosticLatencyTimers []*observ.LatencyTimer

	// Test-only hints; they apply to the original request and are never
	// carried into the pending ledger.
	CancellationExpected bool
	PreemptionsExpected  int
}

// FileUpdates is the processed form of an edit: what changed, how it was
// classified, and — for slow-path updates — the snapshot the typechecker
// will run against.
type FileUpdates struct {
	Epoch uint64
	// EditCount is the number of edits folded into this update.
	EditCount int
	// CommittedEditCount counts edits already acknowledged as merged into
	// the pending slow path (fast-path preemptions).
	CommittedEditCount int

	UpdatedFiles []*source.File
	// UpdatedFileIndexes are the scanned trees, aligned 1:1 with
	// UpdatedFiles.
	UpdatedFileIndexes []pipeline.ParsedFile

	CanTakeFastPath  bool
	HasNewFiles      bool
	CanceledSlowPath bool

	// UpdatedGS is set iff this is a slow-path update the typechecker will
	// execute.
	UpdatedGS *core.GlobalState

	CancellationExpected bool
	PreemptionsExpected  int
}

// Copy returns an update sharing files and trees but owning its slices.
// UpdatedGS is deliberately not copied: владелец снапшота ровно один.
func (u *FileUpdates) Copy() *FileUpdates {
	c := &FileUpdates{
		Epoch:                u.Epoch,
		EditCount:            u.EditCount,
		CommittedEditCount:   u.CommittedEditCount,
		CanTakeFastPath:      u.CanTakeFastPath,
		HasNewFiles:          u.HasNewFiles,
		CanceledSlowPath:     u.CanceledSlowPath,
		CancellationExpected: u.CancellationExpected,
		PreemptionsExpected:  u.PreemptionsExpected,
	}
	c.UpdatedFiles = make([]*source.File, len(u.UpdatedFiles))
	copy(c.UpdatedFiles, u.UpdatedFiles)
	c.UpdatedFileIndexes = make([]pipeline.ParsedFile, len(u.UpdatedFileIndexes))
	copy(c.UpdatedFileIndexes, u.UpdatedFileIndexes)
	return c
}

// MergeOlder combines two updates so the result represents "apply older
// first, then u". For a path present in both, the newer content wins; the
// epoch is u's (the newest); counts are summed; HasNewFiles stays sticky —
// a file entered by the older edit cannot be rolled back out of the table,
// so the merged update still cannot take the fast path on its account.
func (u *FileUpdates) MergeOlder(older *FileUpdates) {
	if older.Epoch > u.Epoch {
		panic("indexer: MergeOlder with a newer update")
	}
	if len(older.UpdatedFiles) != len(older.UpdatedFileIndexes) {
		panic("indexer: MergeOlder with misaligned trees")
	}
	seen := make(map[string]struct{}, len(u.UpdatedFiles))
	for _, f := range u.UpdatedFiles {
		seen[f.Path] = struct{}{}
	}
	for i, f := range older.UpdatedFiles {
		if _, ok := seen[f.Path]; ok {
			continue // новее уже есть
		}
		seen[f.Path] = struct{}{}
		u.UpdatedFiles = append(u.UpdatedFiles, f)
		u.UpdatedFileIndexes = append(u.UpdatedFileIndexes, older.UpdatedFileIndexes[i])
	}
	u.EditCount += older.EditCount
	u.CommittedEditCount += older.CommittedEditCount
	u.HasNewFiles = u.HasNewFiles || older.HasNewFiles
	u.CancellationExpected = u.CancellationExpected || older.CancellationExpected
	u.PreemptionsExpected += older.PreemptionsExpected
}
