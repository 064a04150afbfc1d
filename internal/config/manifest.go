package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"lumen/internal/source"
	"lumen/internal/trace"
)

// ManifestName is the project manifest file discovered by walking up.
const ManifestName = "lumen.toml"

// Manifest mirrors lumen.toml.
type Manifest struct {
	Path   string
	Root   string
	Config manifestConfig
}

type manifestConfig struct {
	Package packageConfig `toml:"package"`
	Index   indexConfig   `toml:"index"`
	Trace   traceConfig   `toml:"trace"`
}

type packageConfig struct {
	Name string `toml:"name"`
}

type indexConfig struct {
	Inputs          []string `toml:"inputs"`
	Workers         int      `toml:"workers"`
	DisableFastPath bool     `toml:"disable_fast_path"`
	CacheDir        string   `toml:"cache_dir"`
	DefaultStrict   string   `toml:"default_strict"`
}

type traceConfig struct {
	Level  string `toml:"level"`
	Output string `toml:"output"`
}

// FindManifest walks up from startDir looking for lumen.toml.
func FindManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{Path: path, Root: filepath.Dir(path)}
	if _, err := toml.DecodeFile(path, &m.Config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

// Resolve converts a manifest into session Options: inputs are expanded to
// the sorted list of .lm files.
func (m *Manifest) Resolve() (Options, error) {
	opts := Options{
		PackageName:     m.Config.Package.Name,
		Workers:         m.Config.Index.Workers,
		DisableFastPath: m.Config.Index.DisableFastPath,
		CacheDir:        m.Config.Index.CacheDir,
	}

	switch m.Config.Index.DefaultStrict {
	case "", "strict":
		opts.DefaultStrict = source.StrictOn
	case "lax":
		opts.DefaultStrict = source.StrictLax
	default:
		return opts, fmt.Errorf("invalid default_strict: %q (expected: strict|lax)", m.Config.Index.DefaultStrict)
	}

	level, err := trace.ParseLevel(orDefault(m.Config.Trace.Level, "off"))
	if err != nil {
		return opts, err
	}
	opts.TraceLevel = level
	opts.TracePath = m.Config.Trace.Output

	inputs := m.Config.Index.Inputs
	if len(inputs) == 0 {
		inputs = []string{"."}
	}
	files, err := expandInputs(m.Root, inputs)
	if err != nil {
		return opts, err
	}
	opts.InputFileNames = files
	return opts, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// expandInputs lists every .lm file under the given files/directories,
// relative to root, sorted and deduplicated.
func expandInputs(root string, inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		p = filepath.ToSlash(filepath.Clean(p))
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, input := range inputs {
		p := input
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", input, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// скрытые каталоги не индексируем
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".lm") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", input, err)
		}
	}

	sort.Strings(files)
	return files, nil
}
