package trace

import (
	"fmt"
	"io"
	"sync"
)

// StreamTracer writes events immediately to an io.Writer as text lines.
type StreamTracer struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

// NewStreamTracer creates a new StreamTracer.
func NewStreamTracer(w io.Writer, level Level) *StreamTracer {
	return &StreamTracer{w: w, level: level}
}

// Emit writes an event to the output. Write errors are swallowed: трейсинг
// не должен ронять сессию.
func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	if ev.Seq == 0 {
		ev.Seq = NextSeq()
	}

	line := formatEvent(ev)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, line) //nolint:errcheck
}

// Flush ensures all buffered data is written.
func (t *StreamTracer) Flush() error {
	if flusher, ok := t.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close flushes and closes the writer if it implements io.Closer.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if closer, ok := t.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Level returns the tracing level.
func (t *StreamTracer) Level() Level { return t.level }

// Enabled reports whether the level is above LevelOff.
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }

func formatEvent(ev *Event) string {
	out := fmt.Sprintf("%s seq=%d %s/%s gid=%d %s",
		ev.Time.Format("15:04:05.000"), ev.Seq, ev.Scope, ev.Kind, ev.GID, ev.Name)
	if ev.SpanID != 0 {
		out += fmt.Sprintf(" span=%d", ev.SpanID)
	}
	if ev.Detail != "" {
		out += " " + ev.Detail
	}
	for k, v := range ev.Extra {
		out += fmt.Sprintf(" %s=%s", k, v)
	}
	return out + "\n"
}

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
