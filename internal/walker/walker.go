package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// FileInfo represents a local file
type FileInfo struct {
	Path    string // Path as walked, rooted at the walker root
	RelPath string // Slash separated path relative to the root
}

// Walker walks regular files with exclude pattern support
type Walker struct {
	fs       afero.Fs
	root     string
	excludes []string
}

// NewWalker creates a new file walker
func NewWalker(fs afero.Fs, root string, excludes []string) (*Walker, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	return &Walker{
		fs:       fs,
		root:     filepath.Clean(root),
		excludes: excludes,
	}, nil
}

// Walk returns every regular file under the root in lexical order
func (w *Walker) Walk() ([]FileInfo, error) {
	var files []FileInfo

	err := afero.Walk(w.fs, w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.isExcludedDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		if w.isExcluded(relPath) {
			return nil
		}

		files = append(files, FileInfo{
			Path:    path,
			RelPath: relPath,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return files, nil
}

func (w *Walker) isExcludedDir(relPath string) bool {
	for _, pattern := range w.excludes {
		if !strings.HasSuffix(pattern, "/") {
			continue
		}
		if matched, _ := doublestar.Match(strings.TrimSuffix(pattern, "/"), relPath); matched {
			return true
		}
	}
	return false
}

// isExcluded checks if a file path matches any file exclude pattern.
// Directory patterns (ending with /) are applied while descending.
func (w *Walker) isExcluded(path string) bool {
	for _, pattern := range w.excludes {
		if strings.HasSuffix(pattern, "/") {
			continue
		}
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}
