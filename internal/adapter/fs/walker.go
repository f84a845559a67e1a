package fs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Resolver expands source paths, which may be plain files or doublestar
// patterns such as "data/**/*.csv".
type Resolver struct {
	excludes []string
}

func NewResolver(excludes ...string) *Resolver {
	return &Resolver{excludes: excludes}
}

// Resolve returns the existing regular files matching pattern in lexical
// order. A plain path that does not exist resolves to nothing.
func (r *Resolver) Resolve(pattern string) ([]string, error) {
	if !hasMeta(pattern) {
		info, err := os.Stat(pattern)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		if info.IsDir() {
			return r.Resolve(filepath.Join(pattern, "*.csv"))
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, path := range matches {
		if r.shouldExclude(path) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

func (r *Resolver) shouldExclude(path string) bool {
	for _, pattern := range r.excludes {
		matched, err := doublestar.PathMatch(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
