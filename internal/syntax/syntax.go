// Package syntax scans Lumen source files for their top-level shape: the
// definition headers that feed the global symbol table, the strict-level
// pragma, and delimiter balance. It deliberately stops short of full
// parsing — the indexer only needs enough structure to hash definitions and
// to tell a broken file from a healthy one.
package syntax

import (
	"lumen/internal/source"
)

// DefKind classifies a top-level definition.
type DefKind uint8

const (
	// DefFn is a function definition header.
	DefFn DefKind = iota + 1
	// DefType is a type definition header.
	DefType
	// DefLet is a top-level binding.
	DefLet
	// DefImport is an import declaration.
	DefImport
)

// String returns the keyword spelling of the kind.
func (k DefKind) String() string {
	switch k {
	case DefFn:
		return "fn"
	case DefType:
		return "type"
	case DefLet:
		return "let"
	case DefImport:
		return "import"
	default:
		return "unknown"
	}
}

// DefSig is one top-level definition header in normalized form.
type DefSig struct {
	Kind DefKind
	Name string
	// Sig is the header text with whitespace runs collapsed; bodies are
	// excluded, so edits inside a body do not change the signature.
	Sig  string
	Pub  bool
	Line uint32 // 1-based
}

// Tree is the scanned top-level structure of one file.
type Tree struct {
	Defs   []DefSig
	Pragma source.StrictLevel
	// Broken is set when the file has unbalanced delimiters or a malformed
	// definition header; a broken file cannot contribute a definitions
	// hash.
	Broken bool
}
