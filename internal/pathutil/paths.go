// Package pathutil resolves the files a run reads and writes.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/unaflow/unaflow/internal/faults"
)

// RedactPath reduces a full path to .../<parent>/<basename> for log lines.
// For example, "/home/ana/Cities/Riyadh/Data/streets.geojson" becomes
// ".../Data/streets.geojson".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// DataFile resolves a file named in the pairing table against the data
// folder. Absolute names are used as given; relative names must stay inside
// dataDir once symlinks are resolved.
func DataFile(dataDir, name string) (string, error) {
	if name == "" {
		return "", faults.New(faults.Configuration, "resolve data file", "file name is empty")
	}
	if strings.ContainsRune(name, '\x00') {
		return "", faults.New(faults.Configuration, "resolve data file", "file name contains null byte")
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	path := filepath.Join(dataDir, name)
	if err := Within(path, dataDir); err != nil {
		return "", faults.Wrap(faults.Configuration, "resolve data file", err)
	}
	return path, nil
}

// Child joins name under root and rejects names that would escape it, such
// as flow names containing "..".
func Child(root, name string) (string, error) {
	path := filepath.Join(root, name)
	if err := Within(path, root); err != nil {
		return "", faults.Wrap(faults.Configuration, "output path", err)
	}
	return path, nil
}

// Within checks that path is root or below it after cleaning and resolving
// symlinks on the deepest existing ancestor.
func Within(path, root string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	resolvedDir, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return err
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(absPath))

	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return fmt.Errorf("cannot resolve root: %w", err)
	}
	resolvedRoot, err := resolveExistingParent(absRoot)
	if err != nil {
		return err
	}
	if !isSubpath(resolved, resolvedRoot) {
		return fmt.Errorf("%q is outside %q", RedactPath(absPath), RedactPath(absRoot))
	}
	return nil
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the part that does not exist yet.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
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

func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
