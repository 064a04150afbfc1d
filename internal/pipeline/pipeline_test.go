package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"lumen/internal/config"
	"lumen/internal/core"
	"lumen/internal/kvcache"
	"lumen/internal/source"
	"lumen/internal/trace"
	"lumen/internal/workers"
)

func TestComputeFileHashBodyVsDefinitions(t *testing.T) {
	base := source.NewFile("a.lm", []byte("fn f(x: Int) -> Int {\n  x\n}\n"), source.FileVirtual)
	body := source.NewFile("a.lm", []byte("fn f(x: Int) -> Int {\n  x + 1\n}\n"), source.FileVirtual)
	defs := source.NewFile("a.lm", []byte("fn f(x: Int, y: Int) -> Int {\n  x\n}\n"), source.FileVirtual)

	hBase := ComputeFileHash(base, trace.Nop)
	hBody := ComputeFileHash(body, trace.Nop)
	hDefs := ComputeFileHash(defs, trace.Nop)

	if hBase.Definitions != hBody.Definitions {
		t.Error("body edit must not move the definitions hash")
	}
	if hBase.Local == hBody.Local {
		t.Error("body edit must move the local hash")
	}
	if hBase.Definitions == hDefs.Definitions {
		t.Error("signature edit must move the definitions hash")
	}
}

func TestComputeFileHashReorderInsensitive(t *testing.T) {
	one := source.NewFile("a.lm", []byte("fn a() -> Int { 1 }\nfn b() -> Int { 2 }\n"), source.FileVirtual)
	two := source.NewFile("a.lm", []byte("fn b() -> Int { 2 }\nfn a() -> Int { 1 }\n"), source.FileVirtual)

	h1 := ComputeFileHash(one, trace.Nop)
	h2 := ComputeFileHash(two, trace.Nop)
	if h1.Definitions != h2.Definitions {
		t.Error("reordering definitions must not move the definitions hash")
	}
}

func TestComputeFileHashBrokenFile(t *testing.T) {
	broken := source.NewFile("a.lm", []byte("fn oops( {\n"), source.FileVirtual)
	h := ComputeFileHash(broken, trace.Nop)
	if h.Definitions != source.HashInvalid {
		t.Errorf("definitions = %d, want the invalid sentinel", h.Definitions)
	}
	if h.Local == source.HashNotComputed {
		t.Error("local hash must still be computed")
	}
}

func TestComputeFileHashPragmaMatters(t *testing.T) {
	strict := source.NewFile("a.lm", []byte("//!strict\nfn f() -> Int { 1 }\n"), source.FileVirtual)
	lax := source.NewFile("a.lm", []byte("//!lax\nfn f() -> Int { 1 }\n"), source.FileVirtual)
	if ComputeFileHash(strict, trace.Nop).Definitions == ComputeFileHash(lax, trace.Nop).Definitions {
		t.Error("strict pragma change must move the definitions hash")
	}
}

func TestReserveFilesAndStrictLevel(t *testing.T) {
	dir := t.TempDir()
	strictPath := filepath.Join(dir, "s.lm")
	laxPath := filepath.Join(dir, "l.lm")
	if err := os.WriteFile(strictPath, []byte("fn a() -> Int { 1 }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(laxPath, []byte("//!lax\nfn b() -> Int { 2 }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	gs := core.NewGlobalState(trace.Nop)
	refs := ReserveFiles(gs, []string{strictPath, laxPath, strictPath})
	if len(refs) != 3 {
		t.Fatalf("refs = %d, want 3", len(refs))
	}
	if refs[0] != refs[2] {
		t.Error("re-reserving the same path must reuse its slot")
	}

	opts := config.Options{DefaultStrict: source.StrictOn}
	if got := DecideStrictLevel(gs, refs[0], opts); got != source.StrictOn {
		t.Errorf("no pragma: strict = %v, want manifest default", got)
	}
	if got := DecideStrictLevel(gs, refs[1], opts); got != source.StrictLax {
		t.Errorf("lax pragma: strict = %v, want lax", got)
	}
}

func TestReserveFilesUnreadable(t *testing.T) {
	gs := core.NewGlobalState(trace.Nop)
	gs.Errors.IgnoreFlushes = true

	refs := ReserveFiles(gs, []string{filepath.Join(t.TempDir(), "missing.lm")})
	if len(refs) != 1 || !refs[0].Exists() {
		t.Fatal("unreadable path must still get a slot")
	}
	if gs.Errors.Len() == 0 {
		t.Error("unreadable path must leave a diagnostic")
	}
}

func TestIndexSortedAndCached(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"c.lm", "a.lm", "b.lm"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("fn "+name[:1]+"() -> Int { 1 }\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	kv, err := kvcache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	gs := core.NewGlobalState(trace.Nop)
	gs.Errors.IgnoreFlushes = true
	refs := ReserveFiles(gs, paths)

	opts := config.Options{DefaultStrict: source.StrictOn}
	trees := Index(gs, refs, opts, workers.NewPool(2, nil), kv)
	if len(trees) != 3 {
		t.Fatalf("trees = %d, want 3", len(trees))
	}
	for i := 1; i < len(trees); i++ {
		if trees[i-1].Ref >= trees[i].Ref {
			t.Fatal("index output must be sorted by file ref")
		}
	}

	// Повторный прогон обслуживается кэшем и даёт те же деревья.
	again := Index(gs, refs, opts, workers.NewPool(0, nil), kv)
	for i := range trees {
		if again[i].Ref != trees[i].Ref {
			t.Fatal("cached run changed ref order")
		}
		if len(again[i].Tree.Defs) != len(trees[i].Tree.Defs) {
			t.Fatal("cached run changed definitions")
		}
	}
}
