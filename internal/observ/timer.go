package observ

import (
	"fmt"
	"strings"
	"time"
)

// Stage names the indexing commands report against.
const (
	StageInitialIndex = "initial_index"
	StageReserve      = "reserve"
	StageScan         = "scan"
	StageHash         = "hash"
	StageSnapshot     = "snapshot"
)

// Timer accumulates the stages of one indexing run, each with its duration
// and the number of files it covered.
type Timer struct {
	stages []stageRecord
}

type stageRecord struct {
	name  string
	start time.Time
	dur   time.Duration
	files int
}

// NewTimer creates an empty run timer.
func NewTimer() *Timer { return &Timer{stages: make([]stageRecord, 0, 4)} }

// Track starts a stage and returns its completion function. Call it with
// the number of files the stage covered; pass a negative count to omit it.
// Завершение, не вызванное ни разу, оставляет нулевую длительность.
func (t *Timer) Track(name string) func(files int) {
	t.stages = append(t.stages, stageRecord{name: name, start: time.Now(), files: -1})
	idx := len(t.stages) - 1
	return func(files int) {
		rec := &t.stages[idx]
		rec.dur = time.Since(rec.start)
		rec.files = files
	}
}

// Summary returns a human-readable rendition of the run for --timings.
func (t *Timer) Summary() string {
	report := t.Report()
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, s := range report.Stages {
		fmt.Fprintf(&b, "  %-16s %8.2f ms", s.Name, s.DurationMS)
		if s.Files >= 0 {
			fmt.Fprintf(&b, "  (%d files)", s.Files)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "  %-16s %8.2f ms\n", "total", report.TotalMS)
	return b.String()
}

// StageReport — сжатая запись стадии для сериализации.
type StageReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Files      int     `json:"files,omitempty"`
}

// Report aggregates the run into milliseconds per stage.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Stages  []StageReport `json:"stages"`
}

// Report builds the aggregate view of the tracked stages.
func (t *Timer) Report() Report {
	if len(t.stages) == 0 {
		return Report{}
	}
	out := Report{Stages: make([]StageReport, len(t.stages))}
	var total time.Duration
	for i, s := range t.stages {
		total += s.dur
		out.Stages[i] = StageReport{
			Name:       s.name,
			DurationMS: float64(s.dur) / float64(time.Millisecond),
			Files:      s.files,
		}
	}
	out.TotalMS = float64(total) / float64(time.Millisecond)
	return out
}
