// Package indexer decides, for every incoming edit, whether the
// typechecker can respond incrementally (fast path: re-check only the
// changed files against the frozen symbol table) or must rebuild the
// symbol table across all files (slow path), and whether an arriving edit
// should cancel and supersede a slow path already in flight.
//
// The indexer owns the authoritative pre-edit GlobalState, the record of
// evicted file versions needed to roll a canceled slow path back to a
// consistent baseline, and the ledger of updates the typechecker is
// currently consuming.
package indexer

import (
	"errors"
	"fmt"

	"lumen/internal/config"
	"lumen/internal/core"
	"lumen/internal/diag"
	"lumen/internal/kvcache"
	"lumen/internal/metrics"
	"lumen/internal/observ"
	"lumen/internal/pipeline"
	"lumen/internal/source"
	"lumen/internal/trace"
	"lumen/internal/workers"
)

// ErrAlreadyInitialized is returned when Initialize runs twice.
var ErrAlreadyInitialized = errors.New("indexer: already initialized")

// Indexer is confined to the session goroutine that delivers edits; only
// the epoch manager inside GlobalState is shared with the typechecker.
type Indexer struct {
	config    *config.Config
	initialGS *core.GlobalState
	kvstore   *kvcache.Store
	emptyPool *workers.Pool

	initialized bool

	// evictedFiles maps file slots to the version just prior to the
	// currently pending slow path; the rollback baseline.
	evictedFiles map[core.FileRef]*source.File

	// pendingTypecheckUpdates is the update the typechecker is currently
	// or next will consume: the slow-path base plus fast-path preemptions
	// folded on top.
	pendingTypecheckUpdates FileUpdates

	pendingLatencyTimers []*observ.LatencyTimer
}

// New creates an indexer around the given global state. kv may be nil to
// run without the on-disk parse cache.
func New(cfg *config.Config, initialGS *core.GlobalState, kv *kvcache.Store) *Indexer {
	return &Indexer{
		config:       cfg,
		initialGS:    initialGS,
		kvstore:      kv,
		emptyPool:    workers.NewPool(0, cfg.Tracer),
		evictedFiles: make(map[core.FileRef]*source.File),
	}
}

// Close cancels the latency timers the indexer still owns.
func (ix *Indexer) Close() {
	for _, timer := range ix.pendingLatencyTimers {
		timer.Cancel()
	}
	ix.pendingLatencyTimers = nil
}

// mergeEvictedFiles folds old into newly, mutating newly. The older of two
// colliding versions wins: откат должен вернуть состояние до старта
// текущего slow path, а не до последней правки.
func mergeEvictedFiles(old, newly map[core.FileRef]*source.File) {
	for ref, f := range old {
		newly[ref] = f
	}
}

// clearAndReplaceTimers cancels every timer in timers and replaces the
// slice with clones of newTimers.
func clearAndReplaceTimers(timers *[]*observ.LatencyTimer, newTimers []*observ.LatencyTimer) {
	for _, timer := range *timers {
		if timer != nil {
			timer.Cancel()
		}
	}
	next := make([]*observ.LatencyTimer, 0, len(newTimers))
	for _, timer := range newTimers {
		next = append(next, timer.Clone())
	}
	*timers = next
}

// Initialize performs the first full indexing pass: reserve a slot for
// every configured input, scan them, hash every file in the table, and
// populate updates with the epoch-0 slow path the typechecker starts from.
func (ix *Indexer) Initialize(updates *FileUpdates, pool *workers.Pool) error {
	if ix.initialized {
		return ErrAlreadyInitialized
	}
	ix.initialized = true

	gs := ix.initialGS
	tracer := ix.config.Tracer
	span := trace.Begin(tracer, trace.ScopeSession, "indexer.initialize")
	defer span.End("")

	// Bulk indexing may run its scans on pool goroutines; the real error
	// queue asserts single-consumer affinity, so swap in a throwaway for
	// the duration and restore on every exit path.
	restore := gs.SwapErrorQueue(diag.NewThrowawayQueue())
	defer restore()

	refs := pipeline.ReserveFiles(gs, ix.config.Opts.InputFileNames)
	trees := pipeline.Index(gs, refs, ix.config.Opts, pool, ix.kvstore)
	// Индексатор — не канал доставки диагностик: сливаем и забываем.
	gs.Errors.Drain()

	// Align trees into a dense vector indexed by FileRef. The table may
	// hold more slots than user inputs (built-in files), so pad to the
	// table size.
	indexed := make([]pipeline.ParsedFile, gs.FileCount())
	for _, tree := range trees {
		indexed[tree.Ref] = tree
	}

	ix.ComputeFileHashes(gs.Files(), pool)

	updates.Epoch = 0
	updates.CanTakeFastPath = false
	updates.UpdatedFileIndexes = indexed
	updates.UpdatedGS = gs.DeepCopy()
	return nil
}

// CommitEdit applies one edit to the indexer's state and returns the
// processed update the typechecker should consume. Strictly sequential on
// the session goroutine: hash, classify, mutate the file table, re-index,
// arbitrate cancellation, update the ledger.
func (ix *Indexer) CommitEdit(edit *Edit) *FileUpdates {
	gs := ix.initialGS
	tracer := ix.config.Tracer
	span := trace.Begin(tracer, trace.ScopeSession, "indexer.commitEdit")
	defer span.End("")

	update := &FileUpdates{
		Epoch:     edit.Epoch,
		EditCount: edit.MergeCount + 1,
	}

	// Ensure all files have hashes. Inline: file table is ours right now.
	ix.ComputeFileHashesInline(edit.Updates)

	update.UpdatedFiles = edit.Updates
	update.CanTakeFastPath = ix.CanTakeFastPathUpdate(update, false)
	update.CancellationExpected = edit.CancellationExpected
	update.PreemptionsExpected = edit.PreemptionsExpected

	// Replace or enter each file, keeping the evicted prior versions for
	// rollback.
	newlyEvictedFiles := make(map[core.FileRef]*source.File)
	frefs := make([]core.FileRef, 0, len(update.UpdatedFiles))
	func() {
		access := gs.UnfreezeFileTable()
		defer access.Release()
		for i, file := range update.UpdatedFiles {
			fref := gs.FindFileByPath(file.Path)
			if fref.Exists() {
				newlyEvictedFiles[fref] = gs.GetFile(fref)
				gs.ReplaceFile(fref, file)
			} else {
				// This file update adds a new file to GlobalState. File
				// immutable: уровень строгости попадает в копию, и она же
				// живёт и в таблице, и в update.
				update.HasNewFiles = true
				fref = gs.EnterFile(file)
				leveled := file.WithStrict(pipeline.DecideStrictLevel(gs, fref, ix.config.Opts))
				gs.ReplaceFile(fref, leveled)
				update.UpdatedFiles[i] = leveled
			}
			frefs = append(frefs, fref)
		}
	}()

	// Re-index the changed files. pipeline.Index sorts output by FileRef;
	// reorder back to edit order to stay aligned with UpdatedFiles.
	fileToPos := make(map[core.FileRef]int, len(frefs))
	for i, fref := range frefs {
		if _, dup := fileToPos[fref]; dup {
			panic(fmt.Sprintf("indexer: duplicate file ref %d in edit", fref))
		}
		fileToPos[fref] = i
	}
	func() {
		// Throwaway error queue: commitEdit may run on a different
		// goroutine than the one that created the session queue.
		restore := gs.SwapErrorQueue(diag.NewThrowawayQueue())
		defer restore()
		trees := pipeline.Index(gs, frefs, ix.config.Opts, ix.emptyPool, ix.kvstore)
		gs.Errors.Drain()
		update.UpdatedFileIndexes = make([]pipeline.ParsedFile, len(trees))
		for _, tree := range trees {
			update.UpdatedFileIndexes[fileToPos[tree.Ref]] = tree
		}
	}()

	runningSlowPath := gs.Epochs.Status()
	if runningSlowPath.SlowPathRunning {
		// A cancelable slow path is in flight. Check whether canceling is
		// cheaper than letting it finish — before paying for a deep copy.
		// pendingTypecheckUpdates holds the edits it is typechecking, so
		// its epoch must be in (pending.Epoch - pending.EditCount,
		// pending.Epoch].
		pending := &ix.pendingTypecheckUpdates
		if runningSlowPath.Epoch > pending.Epoch {
			panic(fmt.Sprintf("indexer: slow path epoch %d ahead of pending epoch %d",
				runningSlowPath.Epoch, pending.Epoch))
		}
		if int64(runningSlowPath.Epoch) <= int64(pending.Epoch)-int64(pending.EditCount) {
			// Нижняя граница мягкая: при дропе правок выше по стеку она
			// может не выполняться.
			trace.Pointf(tracer, trace.ScopeEdit, "indexer.epoch_drift",
				"slow path epoch %d below pending window (%d, %d]",
				runningSlowPath.Epoch, int64(pending.Epoch)-int64(pending.EditCount), pending.Epoch)
		}

		merged := update.Copy()
		merged.MergeOlder(pending)
		merged.CanTakeFastPath = ix.CanTakeFastPathUpdate(merged, true)
		// Cancel if old + new takes the fast path, or if the new update
		// takes the slow path anyway.
		if (merged.CanTakeFastPath || !update.CanTakeFastPath) &&
			gs.Epochs.TryCancelSlowPath(merged.Epoch) {
			update = merged
			update.CanceledSlowPath = true
			metrics.CategoryCounterInc("lsp.updates", "slow_path_canceled")
			mergeEvictedFiles(ix.evictedFiles, newlyEvictedFiles)
		}
	}

	if len(update.UpdatedFiles) != len(update.UpdatedFileIndexes) {
		panic("indexer: updated files and trees diverged")
	}

	if update.CanceledSlowPath {
		// This edit supersedes the canceled slow path; its latency is
		// attributed from the canceled work's start.
		edit.DiagnosticLatencyTimers = append(edit.DiagnosticLatencyTimers, ix.pendingLatencyTimers...)
		ix.pendingLatencyTimers = nil // перемещены в edit, не отменять
		clearAndReplaceTimers(&ix.pendingLatencyTimers, edit.DiagnosticLatencyTimers)
	} else if !update.CanTakeFastPath {
		// A fresh slow path unrelated to whatever ran before.
		clearAndReplaceTimers(&ix.pendingLatencyTimers, edit.DiagnosticLatencyTimers)
	}

	if update.CanTakeFastPath {
		// Fold into the ledger so a canceled slow path can be reversed.
		merged := update.Copy()
		merged.MergeOlder(&ix.pendingTypecheckUpdates)
		ix.pendingTypecheckUpdates = *merged
		if !update.CanceledSlowPath {
			// A slow path keeps running underneath: this edit preempted.
			ix.pendingTypecheckUpdates.CommittedEditCount += update.EditCount
		}
		mergeEvictedFiles(ix.evictedFiles, newlyEvictedFiles)
	} else {
		update.UpdatedGS = gs.DeepCopy()
		ix.pendingTypecheckUpdates = *update.Copy()
	}

	// newlyEvictedFiles now holds this edit's evictions plus, when a slow
	// path is pending, everything needed to reach the pre-slow-path state.
	ix.evictedFiles = newlyEvictedFiles

	// Test-only hints apply to the original request only.
	ix.pendingTypecheckUpdates.CancellationExpected = false
	ix.pendingTypecheckUpdates.PreemptionsExpected = 0

	return update
}

// PendingEpoch reports the epoch of the pending typecheck ledger.
func (ix *Indexer) PendingEpoch() uint64 {
	return ix.pendingTypecheckUpdates.Epoch
}

// GlobalState exposes the authoritative pre-edit state for collaborators
// on the session goroutine.
func (ix *Indexer) GlobalState() *core.GlobalState {
	return ix.initialGS
}
