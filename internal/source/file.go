package source

import (
	"crypto/sha256"
	"os"
	"sync/atomic"
)

// Digest is a fixed 256-bit content digest; keys the on-disk parse cache.
type Digest [32]byte

// File captures content and metadata for a single version of a source file.
// A File is immutable after creation, except for the one-shot installation of
// its structural hash via SetHash.
type File struct {
	Path    string
	Content []byte
	LineIdx []uint32
	Digest  Digest
	Flags   FileFlags
	Strict  StrictLevel

	// hash устанавливается ровно один раз; до этого nil.
	hash atomic.Pointer[FileHash]
}

// NewFile builds a file from normalized bytes, computing LineIdx and Digest.
func NewFile(path string, content []byte, flags FileFlags) *File {
	return &File{
		Path:    normalizePath(path),
		Content: content,
		LineIdx: buildLineIndex(content),
		Digest:  sha256.Sum256(content),
		Flags:   flags,
	}
}

// Load reads a file from disk, normalizes CRLF/BOM, and builds a File.
func Load(path string) (*File, error) {
	// #nosec G304 -- path is provided by the caller
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content, hadBOM := removeBOM(content)
	content, hadCRLF := normalizeCRLF(content)

	flags := FileFlags(0)
	if hadBOM {
		flags |= FileHadBOM
	}
	if hadCRLF {
		flags |= FileNormalizedCRLF
	}
	return NewFile(path, content, flags), nil
}

// Hash returns the structural hash, or nil if it has not been computed yet.
// Safe to call while a hashing worker pool is running.
func (f *File) Hash() *FileHash {
	return f.hash.Load()
}

// SetHash installs the structural hash. Installing a second, different hash
// is a contract violation.
func (f *File) SetHash(h *FileHash) {
	if !f.hash.CompareAndSwap(nil, h) {
		prev := f.hash.Load()
		if prev != nil && *prev != *h {
			panic("source: file hash installed twice with different values for " + f.Path)
		}
	}
}

// WithStrict returns a shallow copy of the file with the given strict level.
// Поскольку File immutable, уровень строгости выставляется при входе в
// таблицу файлов, а не мутацией общего экземпляра.
func (f *File) WithStrict(level StrictLevel) *File {
	clone := &File{
		Path:    f.Path,
		Content: f.Content,
		LineIdx: f.LineIdx,
		Digest:  f.Digest,
		Flags:   f.Flags,
		Strict:  level,
	}
	if h := f.hash.Load(); h != nil {
		clone.hash.Store(h)
	}
	return clone
}

// Resolve converts a byte offset into a line/column position.
func (f *File) Resolve(off uint32) LineCol {
	return toLineCol(f.LineIdx, off)
}
