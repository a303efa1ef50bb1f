// Package pathutil keeps file arguments from MCP clients inside the data
// directories tbc was started with.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path escapes every allowed directory.
var ErrOutsideRoot = errors.New("outside allowed directories")

// RedactPath shortens a path to .../<parent>/<basename> for error messages,
// so "/home/ana/data/pop.yaml" becomes ".../data/pop.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath reports whether path, after cleaning and symlink resolution,
// lies inside one of allowedDirs. The file itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return fmt.Errorf("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// Resolve the parent so a symlinked directory cannot point outside.
	parent, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolved := filepath.Join(parent, filepath.Base(absPath))

	for _, dir := range allowedDirs {
		abs, err := filepath.Abs(filepath.Clean(dir))
		if err != nil {
			continue
		}
		root, err := resolveExistingParent(abs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, root) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is %w", RedactPath(absPath), ErrOutsideRoot)
}

// ResolveInRoot joins a relative path onto root (an empty path means root
// itself), validates the result
// against root and returns the absolute path.
func ResolveInRoot(root, path string) (string, error) {
	if root == "" {
		root = "."
	}
	switch {
	case path == "":
		path = root
	case !filepath.IsAbs(path):
		path = filepath.Join(root, path)
	}
	if err := ValidatePath(path, []string{root}); err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath checks whether path is equal to or below base. "/tmp/foo" is
// not below "/tmp/fo".
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
