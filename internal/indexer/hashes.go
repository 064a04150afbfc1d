package indexer

import (
	"lumen/internal/pipeline"
	"lumen/internal/source"
	"lumen/internal/trace"
	"lumen/internal/workers"
)

// hashResult pairs a file index with its freshly computed hash.
type hashResult struct {
	idx  int
	hash *source.FileHash
}

// ComputeFileHashes ensures every file in the slice carries a structural
// hash. Files are distributed to the pool's workers through a bounded
// queue; each file is hashed by at most one worker, and already-hashed
// files are skipped. With a zero-size pool the work happens inline on the
// caller.
func (ix *Indexer) ComputeFileHashes(files []*source.File, pool *workers.Pool) {
	// Fast abort if all files have hashes.
	allHaveHashes := true
	for _, f := range files {
		if f != nil && f.Hash() == nil {
			allHaveHashes = false
			break
		}
	}
	if allHaveHashes {
		return
	}

	tracer := ix.config.Tracer
	span := trace.Begin(tracer, trace.ScopeSession, "indexer.computeFileHashes")
	defer span.End("")
	trace.Pointf(tracer, trace.ScopeEdit, "indexer.hash_queue", "hashing up to %d files", len(files))

	fileq := workers.NewQueue[int](len(files))
	for i := range files {
		fileq.Push(i)
	}

	resultq := workers.NewBlockingQueue[[]hashResult](len(files))
	pool.MultiplexJob("indexer.fileHash", func() {
		var threadResult []hashResult
		processed := 0
		for job, ok := fileq.TryPop(); ok; job, ok = fileq.TryPop() {
			processed++
			f := files[job]
			if f == nil || f.Hash() != nil {
				continue
			}
			hash := pipeline.ComputeFileHash(f, tracer)
			threadResult = append(threadResult, hashResult{idx: job, hash: &hash})
		}
		if processed > 0 {
			resultq.Push(threadResult, processed)
		}
	})

	for {
		batch, gotItem, done := resultq.WaitPopTimed(workers.BlockInterval)
		if gotItem {
			for _, r := range batch {
				files[r.idx].SetHash(r.hash)
				if ix.config.Opts.Progress != nil {
					ix.config.Opts.Progress(files[r.idx].Path, "hashed")
				}
			}
		}
		if done {
			break
		}
	}
}

// ComputeFileHashesInline is the zero-worker variant used while the caller
// holds the file table.
func (ix *Indexer) ComputeFileHashesInline(files []*source.File) {
	ix.ComputeFileHashes(files, ix.emptyPool)
}
