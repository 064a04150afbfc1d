package syntax

import (
	"strings"

	"lumen/internal/diag"
	"lumen/internal/source"
)

// Scan extracts the top-level structure of a file. Diagnostics go into bag
// (may be nil); a file that cannot be scanned cleanly comes back with
// Broken set.
func Scan(f *source.File, bag *diag.Bag) *Tree {
	tree := &Tree{}
	masked, pragma, ok := maskAndPragma(f, bag)
	tree.Pragma = pragma
	if !ok {
		tree.Broken = true
	}
	if !scanDefs(f, masked, tree, bag) {
		tree.Broken = true
	}
	return tree
}

// maskAndPragma replaces comments and string literals with spaces so the
// definition scan never sees delimiter characters inside them. Newlines are
// preserved for line accounting. It also picks up the strict pragma, which
// must precede any code.
func maskAndPragma(f *source.File, bag *diag.Bag) (masked []byte, pragma source.StrictLevel, ok bool) {
	content := f.Content
	masked = make([]byte, len(content))
	copy(masked, content)
	ok = true

	var line uint32 = 1
	seenCode := false
	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == '/' && i+1 < len(content) && content[i+1] == '/':
			// строчный комментарий; прагма — тоже комментарий
			start := i
			for i < len(content) && content[i] != '\n' {
				i++
			}
			text := string(content[start:i])
			if strings.HasPrefix(text, "//!") {
				level, known := parsePragma(text)
				switch {
				case !known:
					// неизвестная прагма — игнорируем
				case seenCode:
					report(bag, f, diag.SynPragmaPosition, line,
						"strict pragma must precede any definition")
				default:
					pragma = level
				}
			}
			blank(masked, start, i)
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			start := i
			startLine := line
			i += 2
			closed := false
			for i < len(content) {
				if content[i] == '\n' {
					line++
				}
				if content[i] == '*' && i+1 < len(content) && content[i+1] == '/' {
					i += 2
					closed = true
					break
				}
				i++
			}
			if !closed {
				report(bag, f, diag.SynUnclosedDelimiter, startLine, "unterminated block comment")
				ok = false
			}
			blank(masked, start, i)
		case c == '"':
			start := i
			startLine := line
			i++
			closed := false
			for i < len(content) {
				if content[i] == '\\' && i+1 < len(content) {
					i += 2
					continue
				}
				if content[i] == '\n' {
					line++
				}
				if content[i] == '"' {
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				report(bag, f, diag.SynUnclosedDelimiter, startLine, "unterminated string literal")
				ok = false
			}
			blank(masked, start, i)
		default:
			if !isSpace(c) {
				seenCode = true
			}
			i++
		}
	}
	return masked, pragma, ok
}

func parsePragma(text string) (source.StrictLevel, bool) {
	switch strings.TrimSpace(text) {
	case "//!strict":
		return source.StrictOn, true
	case "//!lax":
		return source.StrictLax, true
	default:
		return source.StrictDefault, false
	}
}

// blank replaces masked[start:end] with spaces, keeping newlines.
func blank(masked []byte, start, end int) {
	for j := start; j < end && j < len(masked); j++ {
		if masked[j] != '\n' {
			masked[j] = ' '
		}
	}
}

type openDelim struct {
	ch   byte
	line uint32
}

// scanDefs walks the masked content tracking delimiter balance and captures
// definition headers that appear at the top level.
func scanDefs(f *source.File, masked []byte, tree *Tree, bag *diag.Bag) bool {
	healthy := true
	var stack []openDelim
	var line uint32 = 1
	pubPending := false

	i := 0
	for i < len(masked) {
		c := masked[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, openDelim{ch: c, line: line})
			i++
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != opener(c) {
				report(bag, f, diag.SynUnexpectedClose, line, "unexpected closing delimiter "+string(c))
				healthy = false
				stack = stack[:0] // не каскадировать одну ошибку в десять
			} else {
				stack = stack[:len(stack)-1]
			}
			i++
		case isIdentStart(c):
			start := i
			for i < len(masked) && isIdentPart(masked[i]) {
				i++
			}
			word := string(masked[start:i])
			if len(stack) > 0 {
				pubPending = false
				continue
			}
			switch word {
			case "pub":
				pubPending = true
			case "fn", "type", "let", "import":
				sig, name, end, endLine, balanced := captureHeader(masked, start, i, line, word)
				if !balanced {
					// Скобки заголовка не попадают в stack: проверяем их здесь.
					report(bag, f, diag.SynUnclosedDelimiter, line, "unbalanced delimiters in "+word+" header")
					healthy = false
				}
				if name == "" {
					report(bag, f, diag.SynBadDefinition, line, "missing name in "+word+" definition")
					healthy = false
				} else {
					if pubPending {
						sig = "pub " + sig
					}
					tree.Defs = append(tree.Defs, DefSig{
						Kind: defKind(word),
						Name: name,
						Sig:  sig,
						Pub:  pubPending,
						Line: line,
					})
				}
				pubPending = false
				line = endLine
				i = end
			default:
				pubPending = false
			}
		default:
			i++
		}
	}

	for _, open := range stack {
		report(bag, f, diag.SynUnclosedDelimiter, open.line, "unclosed delimiter "+string(open.ch))
		healthy = false
	}
	return healthy
}

// captureHeader reads a definition header starting at the keyword. For fn
// and type the header runs to the body-opening '{' (or to end of line for
// bodyless forms); for let and import it runs to ';' or end of line. The
// returned end index points at the terminator so the caller's delimiter
// tracking still sees the '{'. The header's own '(' and '[' are tracked here
// instead; balanced reports whether they all closed (a header left open runs
// to end of input).
func captureHeader(masked []byte, kwStart, kwEnd int, line uint32, keyword string) (sig, name string, end int, endLine uint32, balanced bool) {
	toBrace := keyword == "fn" || keyword == "type"
	depth := 0
	i := kwEnd
	endLine = line
	for i < len(masked) {
		c := masked[i]
		if c == '\n' {
			if depth == 0 {
				break
			}
			endLine++
			i++
			continue
		}
		if c == ';' && depth == 0 {
			break
		}
		if c == '(' || c == '[' {
			depth++
		}
		if c == ')' || c == ']' {
			depth--
		}
		if c == '{' && depth == 0 {
			if toBrace {
				break
			}
		}
		i++
	}
	sig = collapseSpaces(string(masked[kwStart:i]))
	name = headerName(sig, keyword)
	return sig, name, i, endLine, depth == 0
}

// headerName extracts the defined name: the identifier (or dotted path for
// imports) right after the keyword.
func headerName(sig, keyword string) string {
	rest := strings.TrimSpace(strings.TrimPrefix(sig, keyword))
	if rest == sig {
		return ""
	}
	end := 0
	for end < len(rest) {
		c := rest[end]
		if isIdentPart(c) || (keyword == "import" && c == '.') {
			end++
			continue
		}
		break
	}
	return rest[:end]
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func defKind(keyword string) DefKind {
	switch keyword {
	case "fn":
		return DefFn
	case "type":
		return DefType
	case "let":
		return DefLet
	default:
		return DefImport
	}
}

func opener(closer byte) byte {
	switch closer {
	case ')':
		return '('
	case ']':
		return '['
	default:
		return '{'
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

func report(bag *diag.Bag, f *source.File, code diag.Code, line uint32, msg string) {
	if bag == nil {
		return
	}
	bag.Add(diag.Diagnostic{
		Severity: diag.SevError,
		Code:     code,
		Message:  msg,
		Path:     f.Path,
		Pos:      source.LineCol{Line: line, Col: 1},
	})
}
