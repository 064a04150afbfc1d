package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lumen/internal/config"
	"lumen/internal/core"
	"lumen/internal/metrics"
	"lumen/internal/observ"
	"lumen/internal/source"
	"lumen/internal/workers"
)

const (
	bodyV1 = "//!strict\nfn greet(name: Str) -> Str {\n  \"hello\"\n}\n"
	bodyV2 = "//!strict\nfn greet(name: Str) -> Str {\n  \"goodbye\"\n}\n"
	defsV2 = "//!strict\nfn greet(name: Str, loud: Bool) -> Str {\n  \"hello\"\n}\n"
)

// newTestIndexer создаёт индексатор поверх временного проекта и прогоняет
// Initialize.
func newTestIndexer(t *testing.T, files map[string]string) (*Indexer, *core.GlobalState, *FileUpdates) {
	t.Helper()
	metrics.Reset()

	dir := t.TempDir()
	paths := make([]string, 0, len(files))
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, p)
	}

	cfg, err := config.New(config.Options{
		PackageName:    "test",
		InputFileNames: paths,
		Workers:        1,
		DefaultStrict:  source.StrictOn,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	gs := core.NewGlobalState(cfg.Tracer)
	ix := New(cfg, gs, nil)
	var updates FileUpdates
	if err := ix.Initialize(&updates, workers.NewPool(0, cfg.Tracer)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return ix, gs, &updates
}

func editFor(epoch uint64, contents map[string]string, ix *Indexer) *Edit {
	files := make([]*source.File, 0, len(contents))
	for path, content := range contents {
		files = append(files, source.NewFile(path, []byte(content), source.FileVirtual))
	}
	return &Edit{Epoch: epoch, Updates: files}
}

func pathIn(t *testing.T, ix *Indexer, name string) string {
	t.Helper()
	for _, p := range ix.config.Opts.InputFileNames {
		if filepath.Base(p) == name {
			return source.NormalizePath(p)
		}
	}
	t.Fatalf("no input named %s", name)
	return ""
}

func TestInitialize(t *testing.T) {
	ix, gs, updates := newTestIndexer(t, map[string]string{"a.lm": bodyV1})

	if updates.Epoch != 0 {
		t.Errorf("initialize epoch = %d, want 0", updates.Epoch)
	}
	if updates.CanTakeFastPath {
		t.Error("initialize must be a slow path")
	}
	if updates.UpdatedGS == nil {
		t.Fatal("initialize must carry a snapshot")
	}
	if len(updates.UpdatedFileIndexes) != gs.FileCount() {
		t.Errorf("trees not padded to table: %d vs %d", len(updates.UpdatedFileIndexes), gs.FileCount())
	}
	// Все файлы таблицы получили хеши.
	for _, f := range gs.Files() {
		if f != nil && f.Hash() == nil {
			t.Errorf("file %s left without a hash", f.Path)
		}
	}

	// Повторная инициализация — ошибка контракта.
	if err := ix.Initialize(&FileUpdates{}, workers.NewPool(0, nil)); err == nil {
		t.Error("second Initialize must fail")
	}
}

func TestCommitEditPureFastPath(t *testing.T) {
	ix, _, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")

	before := metrics.CategoryCounterValue("lsp.slow_path_reason", "changed_definition")
	update := ix.CommitEdit(editFor(1, map[string]string{aPath: bodyV2}, ix))

	if !update.CanTakeFastPath {
		t.Error("body-only edit must take the fast path")
	}
	if update.HasNewFiles {
		t.Error("no new files in this edit")
	}
	if update.UpdatedGS != nil {
		t.Error("fast path must not carry a snapshot")
	}
	if got := metrics.CategoryCounterValue("lsp.slow_path_reason", "changed_definition"); got != before {
		t.Errorf("slow path counter moved: %d -> %d", before, got)
	}
	if ix.pendingTypecheckUpdates.EditCount != 1 {
		t.Errorf("pending editCount = %d, want 1", ix.pendingTypecheckUpdates.EditCount)
	}
	if len(update.UpdatedFiles) != len(update.UpdatedFileIndexes) {
		t.Error("files and trees diverged")
	}
}

func TestCommitEditNewFileForcesSlowPath(t *testing.T) {
	ix, gs, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	bPath := source.NormalizePath(filepath.Join(filepath.Dir(pathIn(t, ix, "a.lm")), "b.lm"))

	update := ix.CommitEdit(editFor(1, map[string]string{bPath: "//!lax\nfn extra() -> Int { 1 }\n"}, ix))

	if !update.HasNewFiles {
		t.Error("edit introduces a new file")
	}
	if update.CanTakeFastPath {
		t.Error("new file cannot take the fast path")
	}
	if update.UpdatedGS == nil {
		t.Error("slow path must carry a snapshot")
	}
	if got := metrics.CategoryCounterValue("lsp.slow_path_reason", "new_file"); got == 0 {
		t.Error("new_file counter not incremented")
	}
	// Вход в таблицу назначает strict level; прагма файла сильнее дефолта.
	ref := gs.FindFileByPath(bPath)
	if !ref.Exists() {
		t.Fatal("new file must be entered into the table")
	}
	entered := gs.GetFile(ref)
	if entered.Strict != source.StrictLax {
		t.Errorf("entered strict = %v, want lax from the pragma", entered.Strict)
	}
	if entered != update.UpdatedFiles[0] {
		t.Error("table and update must share the leveled instance")
	}
}

func TestCommitEditSyntaxErrorForcesSlowPath(t *testing.T) {
	ix, _, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")

	update := ix.CommitEdit(editFor(1, map[string]string{aPath: "fn broken( {\n"}, ix))

	if update.CanTakeFastPath {
		t.Error("broken file cannot take the fast path")
	}
	if got := metrics.CategoryCounterValue("lsp.slow_path_reason", "syntax_error"); got == 0 {
		t.Error("syntax_error counter not incremented")
	}
	if hash := update.UpdatedFiles[0].Hash(); hash.Definitions != source.HashInvalid {
		t.Errorf("definitions hash = %d, want invalid sentinel", hash.Definitions)
	}
}

func TestCommitEditCancelAndMerge(t *testing.T) {
	ix, gs, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")

	// U0 меняет определение — slow path.
	u0 := ix.CommitEdit(editFor(1, map[string]string{aPath: defsV2}, ix))
	if u0.CanTakeFastPath {
		t.Fatal("definition change must take the slow path")
	}
	// Тайпчекер подхватил U0.
	gs.Epochs.BeginSlowPath(u0.Epoch)

	// U1 откатывает определение к исходному.
	u1 := ix.CommitEdit(editFor(2, map[string]string{aPath: bodyV1}, ix))

	if !u1.CanceledSlowPath {
		t.Error("revert edit must cancel the running slow path")
	}
	if !u1.CanTakeFastPath {
		t.Error("merged update must take the fast path")
	}
	if u1.EditCount != u0.EditCount+1 {
		t.Errorf("merged editCount = %d, want %d", u1.EditCount, u0.EditCount+1)
	}
	if u1.Epoch != 2 {
		t.Errorf("merged epoch = %d, want 2 (the newest)", u1.Epoch)
	}
	// Эвикции хранят состояние до U0.
	ref := gs.FindFileByPath(aPath)
	old, ok := ix.evictedFiles[ref]
	if !ok {
		t.Fatal("evicted files must keep the pre-slow-path version")
	}
	if string(old.Content) != bodyV1 {
		t.Errorf("evicted content = %q, want the pre-U0 version", old.Content)
	}
	// Слитый update содержит новейшую версию файла.
	if string(u1.UpdatedFiles[0].Content) != bodyV1 {
		t.Error("merged update must carry the newest content")
	}
}

func TestCommitEditFastPathPreemptsRunningSlowPath(t *testing.T) {
	ix, gs, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")
	bPath := source.NormalizePath(filepath.Join(filepath.Dir(aPath), "b.lm"))

	// U0: новый файл — slow path.
	u0 := ix.CommitEdit(editFor(1, map[string]string{bPath: "fn extra() -> Int { 1 }\n"}, ix))
	gs.Epochs.BeginSlowPath(u0.Epoch)

	timersBefore := len(ix.pendingLatencyTimers)

	// U1: только тело — fast path поверх бегущего slow path.
	u1 := ix.CommitEdit(editFor(2, map[string]string{aPath: bodyV2}, ix))

	if !u1.CanTakeFastPath {
		t.Fatal("body-only edit must take the fast path")
	}
	if u1.CanceledSlowPath {
		t.Error("no cancellation may be attempted here")
	}
	if !gs.Epochs.Status().SlowPathRunning {
		t.Error("slow path must keep running")
	}
	if ix.pendingTypecheckUpdates.CommittedEditCount != u1.EditCount {
		t.Errorf("committedEditCount = %d, want %d",
			ix.pendingTypecheckUpdates.CommittedEditCount, u1.EditCount)
	}
	if len(ix.pendingLatencyTimers) != timersBefore {
		t.Error("preempting fast path must leave pending timers intact")
	}
	// Контент последней правки побеждает в ledger.
	var merged *source.File
	for _, f := range ix.pendingTypecheckUpdates.UpdatedFiles {
		if f.Path == aPath {
			merged = f
		}
	}
	if merged == nil || string(merged.Content) != bodyV2 {
		t.Error("ledger must hold the latest content for a.lm")
	}
}

func TestCommitEditCancelRaceLoss(t *testing.T) {
	ix, gs, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")

	u0 := ix.CommitEdit(editFor(1, map[string]string{aPath: defsV2}, ix))
	gs.Epochs.BeginSlowPath(u0.Epoch)
	// Кто-то уже отменил эпоху — наша попытка обязана проиграть гонку.
	if !gs.Epochs.TryCancelSlowPath(100) {
		t.Fatal("setup: first cancellation must succeed")
	}

	u1 := ix.CommitEdit(editFor(2, map[string]string{aPath: bodyV1}, ix))

	if u1.CanceledSlowPath {
		t.Error("lost race must not report a canceled slow path")
	}
	// Без отмены базой классификации остаётся живая таблица (defsV2), так
	// что откат выглядит как смена определений — свежий slow path.
	if u1.CanTakeFastPath {
		t.Error("update must become a fresh slow path")
	}
	if u1.UpdatedGS == nil {
		t.Error("fresh slow path must carry a snapshot")
	}
	if ix.pendingTypecheckUpdates.Epoch != 2 {
		t.Errorf("pending epoch = %d, want 2", ix.pendingTypecheckUpdates.Epoch)
	}
	if ix.pendingTypecheckUpdates.EditCount != 1 {
		t.Errorf("pending replaced wholesale, editCount = %d, want 1",
			ix.pendingTypecheckUpdates.EditCount)
	}
}

func TestPendingEpochMonotonic(t *testing.T) {
	ix, _, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")

	var last uint64
	contents := []string{bodyV2, bodyV1, defsV2, bodyV1}
	for i, c := range contents {
		ix.CommitEdit(editFor(uint64(i+1), map[string]string{aPath: c}, ix))
		if got := ix.PendingEpoch(); got < last {
			t.Fatalf("pending epoch went backwards: %d after %d", got, last)
		} else {
			last = got
		}
	}
}

func TestCommitEditTimerHandling(t *testing.T) {
	ix, gs, _ := newTestIndexer(t, map[string]string{"a.lm": bodyV1})
	aPath := pathIn(t, ix, "a.lm")

	// slow path с таймером
	t0 := newCountingTimer()
	edit0 := editFor(1, map[string]string{aPath: defsV2}, ix)
	edit0.DiagnosticLatencyTimers = []*observ.LatencyTimer{t0.timer}
	u0 := ix.CommitEdit(edit0)
	if u0.CanTakeFastPath {
		t.Fatal("setup: definition change must be slow")
	}
	if len(ix.pendingLatencyTimers) != 1 {
		t.Fatalf("pending timers = %d, want 1 clone", len(ix.pendingLatencyTimers))
	}

	gs.Epochs.BeginSlowPath(u0.Epoch)

	// Отменяющая правка наследует таймеры отменённой работы.
	t1 := newCountingTimer()
	edit1 := editFor(2, map[string]string{aPath: bodyV1}, ix)
	edit1.DiagnosticLatencyTimers = []*observ.LatencyTimer{t1.timer}
	u1 := ix.CommitEdit(edit1)
	if !u1.CanceledSlowPath {
		t.Fatal("setup: cancel expected")
	}
	// edit1 получил и свой таймер, и таймеры отменённого slow path.
	if len(edit1.DiagnosticLatencyTimers) != 2 {
		t.Errorf("superseding edit timers = %d, want 2", len(edit1.DiagnosticLatencyTimers))
	}
	if len(ix.pendingLatencyTimers) != 2 {
		t.Errorf("pending timers = %d, want clones of both", len(ix.pendingLatencyTimers))
	}
	for _, timer := range edit1.DiagnosticLatencyTimers {
		if timer.Canceled() {
			t.Error("timers inherited by the superseding edit must stay live")
		}
	}
}

type countingTimer struct {
	timer *observ.LatencyTimer
	count *int
}

func newCountingTimer() countingTimer {
	count := 0
	return countingTimer{
		timer: observ.NewLatencyTimer("test.latency", func(string, time.Duration) { count++ }),
		count: &count,
	}
}
