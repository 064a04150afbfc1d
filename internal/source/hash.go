package source

// Sentinel values for FileHash.Definitions. Computed hashes are remapped away
// from this range, so a sentinel never collides with a real hash.
const (
	// HashNotComputed marks a definitions hash that was never produced.
	HashNotComputed uint64 = 0
	// HashInvalid marks a file whose definitions could not be hashed
	// (syntax error). Any classification that sees it must be pessimistic.
	HashInvalid uint64 = 1
)

// FileHash is the structural hash of a single file, split into the part that
// feeds the global symbol table and the part that only affects the file
// itself.
type FileHash struct {
	// Definitions summarizes the top-level definition hierarchy. Two files
	// with equal Definitions contribute the same symbols to the global
	// symbol table.
	Definitions uint64
	// Local summarizes the whole file content, including bodies.
	Local uint64
}

// Valid reports whether the definitions hash is a real hash value.
func (h FileHash) Valid() bool {
	return h.Definitions != HashNotComputed && h.Definitions != HashInvalid
}

// NormalizeHash remaps a raw 64-bit hash out of the sentinel range.
func NormalizeHash(raw uint64) uint64 {
	if raw == HashNotComputed || raw == HashInvalid {
		return raw + 2
	}
	return raw
}
