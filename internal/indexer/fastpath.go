package indexer

import (
	"lumen/internal/core"
	"lumen/internal/metrics"
	"lumen/internal/source"
	"lumen/internal/trace"
)

// slowPathReason is the counter category for classification verdicts.
const slowPathReason = "lsp.slow_path_reason"

// getOldFile returns the baseline version of a file slot: the evicted
// version when one is recorded, else the live table entry.
func getOldFile(fref core.FileRef, gs *core.GlobalState, evicted map[core.FileRef]*source.File) *source.File {
	if old, ok := evicted[fref]; ok {
		return old
	}
	if !fref.Exists() {
		panic("indexer: baseline lookup with empty file ref")
	}
	return gs.GetFile(fref)
}

// CanTakeFastPath reports whether re-typechecking only the changed files
// against the frozen symbol table is sound, using the live table as the
// baseline.
func (ix *Indexer) CanTakeFastPath(changedFiles []*source.File) bool {
	return ix.CanTakeFastPathPending(changedFiles, false)
}

// CanTakeFastPathPending is the baseline-aware form. When
// containsPendingTypecheckUpdates is set, prior versions are read from the
// evicted-files record where present: пока slow path может быть отменён,
// базой для сравнения служит состояние до его старта.
func (ix *Indexer) CanTakeFastPathPending(changedFiles []*source.File, containsPendingTypecheckUpdates bool) bool {
	tracer := ix.config.Tracer
	span := trace.Begin(tracer, trace.ScopeEdit, "indexer.fast_path_decision")
	defer span.End("")
	trace.Pointf(tracer, trace.ScopeEdit, "indexer.fast_path_check",
		"checking fast path after %d file changes", len(changedFiles))

	if ix.config.Opts.DisableFastPath {
		trace.Point(tracer, trace.ScopeEdit, "indexer.slow_path", "fast path is disabled")
		metrics.CategoryCounterInc(slowPathReason, "fast_path_disabled")
		return false
	}

	var evicted map[core.FileRef]*source.File
	if containsPendingTypecheckUpdates {
		evicted = ix.evictedFiles
	}
	for _, f := range changedFiles {
		fref := ix.initialGS.FindFileByPath(f.Path)
		if !fref.Exists() {
			trace.Pointf(tracer, trace.ScopeEdit, "indexer.slow_path", "%s is a new file", f.Path)
			metrics.CategoryCounterInc(slowPathReason, "new_file")
			return false
		}
		oldFile := getOldFile(fref, ix.initialGS, evicted)
		oldHash := oldFile.Hash()
		newHash := f.Hash()
		if oldHash == nil || newHash == nil {
			panic("indexer: fast path decision before hashes were computed for " + f.Path)
		}
		if oldHash.Definitions == source.HashNotComputed {
			panic("indexer: baseline hash for " + f.Path + " was never computed")
		}
		if newHash.Definitions == source.HashInvalid {
			trace.Pointf(tracer, trace.ScopeEdit, "indexer.slow_path", "%s has a syntax error", f.Path)
			metrics.CategoryCounterInc(slowPathReason, "syntax_error")
			return false
		}
		if newHash.Definitions != oldHash.Definitions {
			trace.Pointf(tracer, trace.ScopeEdit, "indexer.slow_path", "%s has changed definitions", f.Path)
			metrics.CategoryCounterInc(slowPathReason, "changed_definition")
			return false
		}
	}

	trace.Point(tracer, trace.ScopeEdit, "indexer.fast_path", "")
	return true
}

// CanTakeFastPathUpdate classifies a processed update. An update carrying a
// new file is slow-path without looking at hashes: новые файлы пока нельзя
// откатить из таблицы.
func (ix *Indexer) CanTakeFastPathUpdate(update *FileUpdates, containsPendingTypecheckUpdates bool) bool {
	if update.HasNewFiles {
		trace.Point(ix.config.Tracer, trace.ScopeEdit, "indexer.slow_path", "update has a new file")
		metrics.CategoryCounterInc(slowPathReason, "new_file")
		return false
	}
	return ix.CanTakeFastPathPending(update.UpdatedFiles, containsPendingTypecheckUpdates)
}
