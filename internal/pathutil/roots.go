// Package pathutil confines file paths supplied by MCP clients to a set of
// allowed directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutside is returned when a path resolves outside every root.
var ErrOutside = errors.New("path is outside the allowed directories")

// Redact reduces a full path to .../<parent>/<basename> for error messages.
// For example, "/home/user/models/nfkb.csv" becomes ".../models/nfkb.csv".
func Redact(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Roots is a set of directories that client paths must stay within.
type Roots []string

// DefaultRoots returns the working directory, ~/.mendoza and any extra
// directories. Empty extras are skipped.
func DefaultRoots(extra ...string) (Roots, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("locating working directory: %w", err)
	}
	roots := Roots{wd}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".mendoza"))
	}
	for _, dir := range extra {
		if dir != "" {
			roots = append(roots, dir)
		}
	}
	return roots, nil
}

// Check resolves path and returns it when it lies inside one of r. Symlinks
// in existing ancestors are followed before the containment test, so a link
// inside a root that points elsewhere is rejected.
func (r Roots) Check(path string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("path is empty")
	case strings.ContainsRune(path, '\x00'):
		return "", fmt.Errorf("path contains a null byte")
	case len(r) == 0:
		return "", fmt.Errorf("no allowed directories configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", Redact(path), err)
	}
	resolved, err := resolve(abs)
	if err != nil {
		return "", err
	}

	for _, root := range r {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootResolved, err := resolve(rootAbs)
		if err != nil {
			continue
		}
		if within(resolved, rootResolved) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutside, Redact(abs))
}

// resolve follows symlinks in the deepest existing ancestor of path and
// re-appends the missing tail.
func resolve(path string) (string, error) {
	var tail []string
	dir := path
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("cannot resolve %s", Redact(path))
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// within reports whether path is base or below it.
func within(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(base, string(filepath.Separator))+string(filepath.Separator))
}
