// Package pipeline turns raw files into the artifacts the indexer and the
// symbol table consume: structural hashes, scanned definition trees, and
// strict levels. It is the only package that knows how a Lumen file becomes
// symbol-table input.
package pipeline

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"lumen/internal/config"
	"lumen/internal/core"
	"lumen/internal/diag"
	"lumen/internal/kvcache"
	"lumen/internal/source"
	"lumen/internal/syntax"
	"lumen/internal/trace"
	"lumen/internal/workers"
)

// ParsedFile pairs a scanned tree with the file slot it belongs to.
type ParsedFile struct {
	Ref  core.FileRef
	Tree *syntax.Tree
}

// ComputeFileHash scans a file and produces its structural hash. A file
// that fails to scan yields an Invalid definitions hash, never an error:
// сломанный файл — вход классификации, а не сбой.
func ComputeFileHash(f *source.File, tracer trace.Tracer) source.FileHash {
	local := source.NormalizeHash(xxhash.Sum64(f.Content))

	tree := syntax.Scan(f, nil)
	if tree.Broken {
		return source.FileHash{Definitions: source.HashInvalid, Local: local}
	}
	return source.FileHash{Definitions: definitionsHash(tree), Local: local}
}

// definitionsHash folds the definition headers and the strict pragma into
// one value. Headers are hashed in sorted order: перестановка определений
// не меняет вклад файла в таблицу символов.
func definitionsHash(tree *syntax.Tree) uint64 {
	sigs := make([]string, 0, len(tree.Defs)+1)
	for _, d := range tree.Defs {
		sigs = append(sigs, d.Kind.String()+"\x00"+d.Name+"\x00"+d.Sig)
	}
	sort.Strings(sigs)

	h := xxhash.New()
	_, _ = h.WriteString("pragma\x00" + tree.Pragma.String() + "\x01") //nolint:errcheck
	for _, sig := range sigs {
		_, _ = h.WriteString(sig) //nolint:errcheck
		_, _ = h.Write([]byte{1}) //nolint:errcheck
	}
	return source.NormalizeHash(h.Sum64())
}

// ReserveFiles enters a slot for every path, loading content from disk.
// Paths already present keep their refs. An unreadable path still gets a
// slot — with empty content and a diagnostic — so refs stay aligned with
// the configured inputs.
func ReserveFiles(gs *core.GlobalState, paths []string) []core.FileRef {
	access := gs.UnfreezeFileTable()
	defer access.Release()

	refs := make([]core.FileRef, 0, len(paths))
	for _, path := range paths {
		if ref := gs.FindFileByPath(source.NormalizePath(path)); ref.Exists() {
			refs = append(refs, ref)
			continue
		}
		f, err := source.Load(path)
		if err != nil {
			gs.Errors.Push(diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.IdxFileUnreadable,
				Message:  "cannot read file: " + err.Error(),
				Path:     source.NormalizePath(path),
			})
			f = source.NewFile(path, nil, 0)
		}
		refs = append(refs, gs.EnterFile(f))
	}
	return refs
}

// DecideStrictLevel resolves the strict level for a file slot: the file's
// pragma wins, otherwise the manifest default applies.
func DecideStrictLevel(gs *core.GlobalState, ref core.FileRef, opts config.Options) source.StrictLevel {
	f := gs.GetFile(ref)
	if f == nil {
		return opts.DefaultStrict
	}
	if pragma := syntax.PragmaOf(f); pragma != source.StrictDefault {
		return pragma
	}
	return opts.DefaultStrict
}

// Index scans the given file slots into parsed trees, consulting the
// content-addressed cache first. The result is sorted by FileRef. Scan
// diagnostics go to the global state's error queue, which the caller is
// expected to have swapped for a throwaway.
func Index(gs *core.GlobalState, refs []core.FileRef, opts config.Options, pool *workers.Pool, kv *kvcache.Store) []ParsedFile {
	span := trace.Begin(gs.Tracer, trace.ScopeSession, "pipeline.index")
	defer span.End("")

	out := make([]ParsedFile, len(refs))

	scanOne := func(i int) {
		ref := refs[i]
		f := gs.GetFile(ref)
		if f == nil {
			out[i] = ParsedFile{Ref: ref, Tree: &syntax.Tree{}}
			return
		}

		if tree := cacheLookup(kv, f); tree != nil {
			trace.Pointf(gs.Tracer, trace.ScopeFile, "pipeline.cache_hit", "%s", f.Path)
			out[i] = ParsedFile{Ref: ref, Tree: tree}
			return
		}

		bag := diag.NewBag(32)
		tree := syntax.Scan(f, bag)
		if bag.Len() > 0 {
			gs.Errors.PushBag(bag)
		}
		if err := kv.Put(f.Digest, kvcache.FromTree(tree)); err != nil {
			trace.Pointf(gs.Tracer, trace.ScopeFile, "pipeline.cache_put_failed", "%s: %v", f.Path, err)
		}
		if opts.Progress != nil {
			opts.Progress(f.Path, "scanned")
		}
		out[i] = ParsedFile{Ref: ref, Tree: tree}
	}

	if pool.Size() == 0 {
		for i := range refs {
			scanOne(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(pool.Size())
		for i := range refs {
			i := i
			g.Go(func() error {
				scanOne(i)
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // scanning never fails
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

func cacheLookup(kv *kvcache.Store, f *source.File) *syntax.Tree {
	var payload kvcache.Payload
	ok, err := kv.Get(f.Digest, &payload)
	if err != nil || !ok {
		return nil
	}
	return kvcache.ToTree(&payload)
}
