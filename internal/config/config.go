// Package config carries the session configuration of the language server:
// what to index, how many workers to hash with, and the switches that
// change arbitration behavior (fast path disable, trace level).
package config

import (
	"runtime"

	"lumen/internal/source"
	"lumen/internal/trace"
)

// Options are the resolved settings of one session.
type Options struct {
	PackageName string
	// InputFileNames are the .lm files of the initial workspace, in sorted
	// order.
	InputFileNames []string
	// Workers is the hashing/indexing pool size; 0 means NumCPU.
	Workers int
	// DisableFastPath forces every edit onto the slow path.
	DisableFastPath bool
	// CacheDir roots the on-disk parse cache; empty disables it.
	CacheDir string
	// DefaultStrict applies to files without a strict pragma.
	DefaultStrict source.StrictLevel
	TraceLevel    trace.Level
	TracePath     string

	// Progress, when set, receives per-file stage notifications during
	// bulk operations; the index command points it at the progress UI.
	Progress func(path, stage string) `toml:"-"`
}

// Config couples options with the session tracer.
type Config struct {
	Opts   Options
	Tracer trace.Tracer
}

// New builds a Config, filling defaults.
func New(opts Options) (*Config, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	tracer, err := trace.New(trace.Config{Level: opts.TraceLevel, OutputPath: opts.TracePath})
	if err != nil {
		return nil, err
	}
	return &Config{Opts: opts, Tracer: tracer}, nil
}
