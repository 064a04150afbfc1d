package syntax

import (
	"bytes"

	"lumen/internal/source"
)

// PragmaOf returns the file's strict pragma without a full scan. The pragma
// must precede any code, so only the leading comment block is examined.
func PragmaOf(f *source.File) source.StrictLevel {
	for _, line := range bytes.Split(f.Content, []byte{'\n'}) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if !bytes.HasPrefix(trimmed, []byte("//")) {
			break // начался код — прагмы дальше не считаются
		}
		if bytes.HasPrefix(trimmed, []byte("//!")) {
			if level, known := parsePragma(string(trimmed)); known {
				return level
			}
		}
	}
	return source.StrictDefault
}
