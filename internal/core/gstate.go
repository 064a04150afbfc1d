// Package core owns the authoritative state of an indexing session: the
// global file table the symbol information is keyed by, and the epoch
// manager that orders typecheck attempts across goroutines.
package core

import (
	"fmt"

	"fortio.org/safecast"

	"lumen/internal/diag"
	"lumen/internal/source"
	"lumen/internal/trace"
)

// FileRef identifies a file slot in a GlobalState. The zero ref is reserved
// and never names a file.
type FileRef uint32

// Exists reports whether the ref names a file table slot.
func (r FileRef) Exists() bool { return r != 0 }

// GlobalState is the global symbol table of a session, reduced here to the
// part the indexer owns: the dense file table. Slot 0 is reserved.
//
// The file table is frozen by default; mutations go through a scoped
// UnfreezeFileTable acquisition. GlobalState itself is confined to one
// goroutine at a time — snapshots handed to the typechecker are deep copies.
type GlobalState struct {
	Errors *diag.Queue
	Epochs *EpochManager
	Tracer trace.Tracer

	files  []*source.File
	byPath map[string]FileRef
	frozen bool
}

// NewGlobalState creates an empty, frozen global state owned by the calling
// goroutine.
func NewGlobalState(tracer trace.Tracer) *GlobalState {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &GlobalState{
		Errors: diag.NewQueue(),
		Epochs: NewEpochManager(),
		Tracer: tracer,
		files:  []*source.File{nil}, // слот 0 зарезервирован
		byPath: make(map[string]FileRef),
		frozen: true,
	}
}

// FindFileByPath returns the ref for a path, or the zero ref.
func (gs *GlobalState) FindFileByPath(path string) FileRef {
	return gs.byPath[path]
}

// GetFile returns the file in a slot. The zero ref yields nil.
func (gs *GlobalState) GetFile(ref FileRef) *source.File {
	if !ref.Exists() || int(ref) >= len(gs.files) {
		return nil
	}
	return gs.files[ref]
}

// Files returns the dense file table including the reserved nil slot 0.
// Не модифицируйте возвращаемый срез.
func (gs *GlobalState) Files() []*source.File {
	return gs.files
}

// FileCount returns the number of slots including the reserved slot.
func (gs *GlobalState) FileCount() int { return len(gs.files) }

// EnterFile appends a new file to the table and returns its ref.
// Refs are assigned monotonically and are stable for the file's lifetime.
func (gs *GlobalState) EnterFile(f *source.File) FileRef {
	gs.mustBeUnfrozen("EnterFile")
	if existing := gs.byPath[f.Path]; existing.Exists() {
		panic(fmt.Sprintf("core: EnterFile for already-entered path %q", f.Path))
	}
	id, err := safecast.Conv[uint32](len(gs.files))
	if err != nil {
		panic(fmt.Errorf("core: file table overflow: %w", err))
	}
	ref := FileRef(id)
	gs.files = append(gs.files, f)
	gs.byPath[f.Path] = ref
	return ref
}

// ReplaceFile installs new content in an existing slot, keeping the ref.
func (gs *GlobalState) ReplaceFile(ref FileRef, f *source.File) {
	gs.mustBeUnfrozen("ReplaceFile")
	old := gs.GetFile(ref)
	if old == nil {
		panic(fmt.Sprintf("core: ReplaceFile on empty slot %d", ref))
	}
	if old.Path != f.Path {
		panic(fmt.Sprintf("core: ReplaceFile path mismatch: %q -> %q", old.Path, f.Path))
	}
	gs.files[ref] = f
}

func (gs *GlobalState) mustBeUnfrozen(op string) {
	if gs.frozen {
		panic("core: " + op + " on frozen file table")
	}
}

// FileTableAccess is a scoped unfreeze of the file table. Release must run
// on every exit path.
type FileTableAccess struct {
	gs       *GlobalState
	released bool
}

// UnfreezeFileTable opens the file table for mutation until Release.
func (gs *GlobalState) UnfreezeFileTable() *FileTableAccess {
	if !gs.frozen {
		panic("core: file table is already unfrozen")
	}
	gs.frozen = false
	return &FileTableAccess{gs: gs}
}

// Release re-freezes the file table. Idempotent, defer-friendly.
func (a *FileTableAccess) Release() {
	if a.released {
		return
	}
	a.released = true
	a.gs.frozen = true
}

// SwapErrorQueue installs a replacement error sink and returns a restore
// function. Restore must run on every exit path, including failure.
func (gs *GlobalState) SwapErrorQueue(q *diag.Queue) (restore func()) {
	saved := gs.Errors
	gs.Errors = q
	return func() { gs.Errors = saved }
}

// DeepCopy returns an independent snapshot of the global state, suitable
// for handing to the typechecker goroutine. Files are immutable and shared;
// the file table and path index are copied; the epoch manager is shared by
// design — it is the cross-goroutine synchronization point. The copy gets a
// throwaway error queue.
func (gs *GlobalState) DeepCopy() *GlobalState {
	files := make([]*source.File, len(gs.files))
	copy(files, gs.files)
	byPath := make(map[string]FileRef, len(gs.byPath))
	for p, r := range gs.byPath {
		byPath[p] = r
	}
	return &GlobalState{
		Errors: diag.NewThrowawayQueue(),
		Epochs: gs.Epochs,
		Tracer: gs.Tracer,
		files:  files,
		byPath: byPath,
		frozen: true,
	}
}
