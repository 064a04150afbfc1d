// Package lsp drives an indexing session over a newline-delimited JSON
// protocol: each input line carries the files an edit replaced, each output
// line reports how the edit was arbitrated. The full LSP JSON-RPC surface
// lives outside this core.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"lumen/internal/config"
	"lumen/internal/core"
	"lumen/internal/indexer"
	"lumen/internal/kvcache"
	"lumen/internal/observ"
	"lumen/internal/trace"
	"lumen/internal/typecheck"
	"lumen/internal/workers"
)

// Session owns one editing session: the indexer on the session goroutine
// and the typechecker on its own.
type Session struct {
	cfg *config.Config
	ix  *indexer.Indexer
	tc  *typecheck.Typechecker

	epoch   uint64
	updates chan *indexer.FileUpdates

	// pending holds events waiting to be folded into one edit while the
	// typechecker is behind.
	pending       []*EditEvent
	pendingTimers []*observ.LatencyTimer

	wg sync.WaitGroup
}

// NewSession wires a session from config. kv may be nil.
func NewSession(cfg *config.Config, kv *kvcache.Store) *Session {
	gs := core.NewGlobalState(cfg.Tracer)
	return &Session{
		cfg:     cfg,
		ix:      indexer.New(cfg, gs, kv),
		tc:      typecheck.New(cfg.Tracer),
		updates: make(chan *indexer.FileUpdates, 1),
	}
}

// Indexer exposes the session's indexer.
func (s *Session) Indexer() *indexer.Indexer { return s.ix }

// Typechecker exposes the session's typechecker.
func (s *Session) Typechecker() *typecheck.Typechecker { return s.tc }

// Initialize performs the initial indexing pass and hands the epoch-0
// update to the typechecker.
func (s *Session) Initialize(ctx context.Context, pool *workers.Pool) error {
	var updates indexer.FileUpdates
	if err := s.ix.Initialize(&updates, pool); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tc.Run(ctx, s.updates)
	}()
	s.updates <- &updates
	return nil
}

// HandleEvent queues one edit event. Events pile up while the typechecker
// is saturated and are folded into a single edit as soon as it drains —
// это и есть источник mergeCount.
func (s *Session) HandleEvent(ev *EditEvent) *indexer.FileUpdates {
	s.pending = append(s.pending, ev)
	s.pendingTimers = append(s.pendingTimers, NewEditTimer())
	if len(s.updates) == cap(s.updates) {
		// Тайпчекер не успевает; придержим и сольём со следующим.
		return nil
	}
	return s.flush()
}

// Flush commits whatever is pending regardless of typechecker backlog.
func (s *Session) Flush() *indexer.FileUpdates {
	if len(s.pending) == 0 {
		return nil
	}
	return s.flush()
}

func (s *Session) flush() *indexer.FileUpdates {
	s.epoch++
	edit := CoalesceEvents(s.epoch, s.pending, s.pendingTimers)
	s.pending = nil
	s.pendingTimers = nil

	update := s.ix.CommitEdit(edit)
	s.updates <- update
	return update
}

// editReport is the wire form of an arbitration verdict.
type editReport struct {
	Epoch            uint64 `json:"epoch"`
	FastPath         bool   `json:"fast_path"`
	HasNewFiles      bool   `json:"has_new_files,omitempty"`
	CanceledSlowPath bool   `json:"canceled_slow_path,omitempty"`
	EditCount        int    `json:"edit_count"`
}

// Run reads edit events from in and writes one verdict line per committed
// edit to out, until EOF or context cancellation.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	pool := workers.NewPool(s.cfg.Opts.Workers, s.cfg.Tracer)
	if err := s.Initialize(ctx, pool); err != nil {
		return err
	}
	defer s.Close()

	w := bufio.NewWriter(out)
	defer w.Flush() //nolint:errcheck

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev EditEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			trace.Pointf(s.cfg.Tracer, trace.ScopeSession, "lsp.bad_event", "%v", err)
			continue
		}
		update := s.HandleEvent(&ev)
		if update == nil {
			update = s.Flush() // одиночный читатель: дальше копить незачем
		}
		if update != nil {
			if err := writeReport(w, update); err != nil {
				return err
			}
		}
	}
	if update := s.Flush(); update != nil {
		if err := writeReport(w, update); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeReport(w *bufio.Writer, update *indexer.FileUpdates) error {
	report := editReport{
		Epoch:            update.Epoch,
		FastPath:         update.CanTakeFastPath,
		HasNewFiles:      update.HasNewFiles,
		CanceledSlowPath: update.CanceledSlowPath,
		EditCount:        update.EditCount,
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

// Close releases the session: cancels outstanding timers and stops the
// typechecker once the queue drains.
func (s *Session) Close() {
	for _, timer := range s.pendingTimers {
		timer.Cancel()
	}
	s.pendingTimers = nil
	s.pending = nil
	s.ix.Close()
	close(s.updates)
	s.wg.Wait()
}
