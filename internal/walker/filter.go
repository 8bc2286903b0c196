package walker

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skippedDirs are directory names never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".compoundrag": true,
	"node_modules": true,
	"__MACOSX":     true,
	".Trash":       true,
	".idea":        true,
	".vscode":      true,
}

// Filter decides which relative paths of a walk are kept. Paths use
// forward slashes.
type Filter struct {
	include []string
	exclude []string
	ignore  []ignoreRule
}

type ignoreRule struct {
	pattern  string
	anchored bool // contains a slash: matched against the whole path
	dirOnly  bool
}

// NewFilter validates the include and exclude globs. Empty include means
// every path is a candidate.
func NewFilter(include, exclude []string) (*Filter, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("walker: invalid pattern %q", p)
		}
	}
	return &Filter{include: include, exclude: exclude}, nil
}

// LoadIgnoreFile adds the rules of a .gitignore style file. A missing file
// is not an error. Negation rules are not supported and are skipped.
func (f *Filter) LoadIgnoreFile(file string) error {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("walker: reading %s: %w", file, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		r := ignoreRule{dirOnly: strings.HasSuffix(line, "/")}
		line = strings.TrimSuffix(line, "/")
		r.anchored = strings.Contains(line, "/")
		r.pattern = strings.TrimPrefix(line, "/")
		if doublestar.ValidatePattern(r.pattern) {
			f.ignore = append(f.ignore, r)
		}
	}
	return nil
}

// SkipDir reports whether a directory with this name should not be walked.
func (f *Filter) SkipDir(name string) bool {
	return skippedDirs[name]
}

// Allows reports whether the file at relPath is kept.
func (f *Filter) Allows(relPath string) bool {
	if f.ignored(relPath) {
		return false
	}
	if len(f.include) > 0 && !matchesAny(relPath, f.include) {
		return false
	}
	return !matchesAny(relPath, f.exclude)
}

func (f *Filter) ignored(relPath string) bool {
	parts := strings.Split(relPath, "/")
	for _, r := range f.ignore {
		if r.anchored {
			if ok, _ := doublestar.Match(r.pattern, relPath); ok {
				return true
			}
			// An anchored directory rule also hides everything below it.
			for i := 1; i < len(parts); i++ {
				if ok, _ := doublestar.Match(r.pattern, strings.Join(parts[:i], "/")); ok {
					return true
				}
			}
			continue
		}
		for i, part := range parts {
			if r.dirOnly && i == len(parts)-1 {
				continue
			}
			if ok, _ := doublestar.Match(r.pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// matchesAny matches relPath, and its base name, against globs.
func matchesAny(relPath string, patterns []string) bool {
	base := path.Base(relPath)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}
