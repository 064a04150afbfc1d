// Package kvcache is the content-addressed on-disk cache the indexing
// pipeline consults before re-scanning a file. Keys are content digests, so
// a file that reverts to previous content hits the cache. The store is an
// opaque handle to the indexer: safe to wipe, versioned by schema.
package kvcache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"lumen/internal/source"
	"lumen/internal/syntax"
)

// Current schema version - increment when Payload format changes.
const schemaVersion uint16 = 1

// Store keeps scanned file payloads keyed by content digest.
// Thread-safe for concurrent access.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Payload stores one file's scanned top-level structure.
type Payload struct {
	// Schema version for safe invalidation when the format changes
	Schema uint16

	Pragma uint8
	Broken bool
	Defs   []DefPayload
}

// DefPayload is the serialized form of one definition header.
type DefPayload struct {
	Kind uint8
	Name string
	Sig  string
	Pub  bool
	Line uint32
}

// Open initializes a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the standard cache location for the app.
func DefaultDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

func (s *Store) pathFor(key source.Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// Подкаталог "scans" — для удобства очистки.
	return filepath.Join(s.dir, "scans", hexKey+".mp")
}

// Put serializes and writes a payload. A nil store accepts and drops.
func (s *Store) Put(key source.Digest, payload *Payload) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(f.Name()) //nolint:errcheck
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(payload); err != nil {
		_ = f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a payload. ok is false on miss.
func (s *Store) Get(key source.Digest, out *Payload) (bool, error) {
	if s == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.pathFor(key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "kvcache: close %s: %v\n", p, closeErr)
		}
	}()
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (s *Store) DropAll() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(s.dir, old); err != nil {
		return err
	}
	return os.RemoveAll(old)
}

// FromTree converts a scanned tree to its cache payload.
func FromTree(tree *syntax.Tree) *Payload {
	if tree == nil {
		return nil
	}
	payload := &Payload{
		Schema: schemaVersion,
		Pragma: uint8(tree.Pragma),
		Broken: tree.Broken,
		Defs:   make([]DefPayload, len(tree.Defs)),
	}
	for i, d := range tree.Defs {
		payload.Defs[i] = DefPayload{
			Kind: uint8(d.Kind),
			Name: d.Name,
			Sig:  d.Sig,
			Pub:  d.Pub,
			Line: d.Line,
		}
	}
	return payload
}

// ToTree converts a payload back to a tree; nil on schema mismatch.
func ToTree(payload *Payload) *syntax.Tree {
	if payload == nil || payload.Schema != schemaVersion {
		return nil
	}
	tree := &syntax.Tree{
		Pragma: source.StrictLevel(payload.Pragma),
		Broken: payload.Broken,
		Defs:   make([]syntax.DefSig, len(payload.Defs)),
	}
	for i, d := range payload.Defs {
		tree.Defs[i] = syntax.DefSig{
			Kind: syntax.DefKind(d.Kind),
			Name: d.Name,
			Sig:  d.Sig,
			Pub:  d.Pub,
			Line: d.Line,
		}
	}
	return tree
}
