package api

import (
	"errors"
	"path/filepath"
	"strings"
)

var errOutsideNotes = errors.New("path is outside the notes directory")

// resolveNotePath resolves p against root and rejects anything that lands
// outside root once symlinks are followed. Relative paths are taken from root.
func resolveNotePath(root, p string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rootReal := realPath(rootAbs)

	if !filepath.IsAbs(p) {
		p = filepath.Join(rootAbs, p)
	}
	target := realPath(filepath.Clean(p))

	rel, err := filepath.Rel(rootReal, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideNotes
	}
	return target, nil
}

// realPath follows symlinks in p. A missing final element is kept as is so
// unreadable notes still resolve and report as unavailable.
func realPath(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(dir, filepath.Base(p))
	}
	return p
}
