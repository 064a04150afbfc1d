package lsp

import (
	"sort"

	"lumen/internal/indexer"
	"lumen/internal/metrics"
	"lumen/internal/observ"
	"lumen/internal/source"
)

// EditEvent is the wire form of one edit notification: the files whose
// contents replace prior versions.
type EditEvent struct {
	Files map[string]string `json:"files"`
}

// CoalesceEvents folds a run of edit events into one Edit at the given
// epoch. Later contents win per path; MergeCount records how many events
// were folded beyond the first. Each folded event contributes its own
// latency timer so end-to-end attribution survives the merge.
func CoalesceEvents(epoch uint64, events []*EditEvent, timers []*observ.LatencyTimer) *indexer.Edit {
	merged := make(map[string]string)
	for _, ev := range events {
		for path, content := range ev.Files {
			merged[source.NormalizePath(path)] = content
		}
	}

	paths := make([]string, 0, len(merged))
	for path := range merged {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	files := make([]*source.File, 0, len(paths))
	for _, path := range paths {
		files = append(files, source.NewFile(path, []byte(merged[path]), source.FileVirtual))
	}

	return &indexer.Edit{
		Epoch:                   epoch,
		MergeCount:              len(events) - 1,
		Updates:                 files,
		DiagnosticLatencyTimers: timers,
	}
}

// NewEditTimer starts the latency timer attached to an arriving edit.
func NewEditTimer() *observ.LatencyTimer {
	return observ.NewLatencyTimer("lsp.diagnostic_latency", metrics.RecordLatency)
}
