// Package fsutil holds small filesystem helpers shared by the catalog
// and config loaders. Checkpoint paths in catalog files are commonly
// written with a leading tilde, so expansion lives here once instead of
// at every call site.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves a leading '~' against the current user's home
// directory. Paths without a tilde pass through untouched.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists reports whether a path is present on disk. Stat errors
// other than not-exist count as present so that permission problems
// surface at open time instead of hiding the catalog entry.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
