package source

type (
	// FileFlags encodes metadata about a source file.
	FileFlags uint8 // метаданные
	// StrictLevel controls how strictly the typechecker treats a file.
	StrictLevel uint8
)

const (
	// FileVirtual indicates the file was added from memory (edit, test, stdin).
	FileVirtual FileFlags = 1 << iota // добавлен не с диска
	FileHadBOM
	FileNormalizedCRLF
)

const (
	// StrictDefault defers to the manifest's default_strict setting.
	StrictDefault StrictLevel = iota
	// StrictLax disables most checks for the file.
	StrictLax
	// StrictOn enables full checking for the file.
	StrictOn
)

// String returns the pragma spelling of the strict level.
func (s StrictLevel) String() string {
	switch s {
	case StrictLax:
		return "lax"
	case StrictOn:
		return "strict"
	default:
		return "default"
	}
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}
