package planner

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuya-takeyama/goes-mirror/pkg/inventory"
	"github.com/yuya-takeyama/goes-mirror/pkg/keyscheme"
)

// TargetFor derives the local placement of obj under root.
func TargetFor(root string, obj inventory.Object) LocalTarget {
	rel := keyscheme.LocalPathFor(obj.Path())
	return LocalTarget{
		RelativePath: rel,
		AbsolutePath: filepath.Join(root, filepath.FromSlash(rel)),
	}
}

// WithinRoot reports whether a slash separated relative path stays strictly
// below the directory it is joined to.
func WithinRoot(rel string) bool {
	rel = path.Clean(rel)
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, "../") && !path.IsAbs(rel)
}

// Decide picks the transfer decision for an object that passed the name
// filter. Equal sizes, zero included, count as already downloaded.
func Decide(local LocalState, remoteSize int64, overwrite bool) (Decision, string) {
	switch {
	case local.StatErr != nil:
		return DecisionFetch, fmt.Sprintf("cannot stat local file: %v", local.StatErr)
	case !local.Exists:
		return DecisionFetch, ReasonNewFile
	case overwrite:
		return DecisionOverwriteFetch, ReasonOverwrite
	case local.Size != remoteSize:
		return DecisionFetch, fmt.Sprintf("size differs (local: %d, remote: %d)", local.Size, remoteSize)
	default:
		return DecisionSkip, ReasonUpToDate
	}
}

// InWindow reports whether the scan start encoded in fileName lies in
// [start, end). Names that cannot be parsed are always in the window.
func InWindow(fileName string, start, end time.Time) bool {
	if start.IsZero() && end.IsZero() {
		return true
	}
	name, err := keyscheme.ParseName(fileName)
	if err != nil {
		return true
	}
	if !start.IsZero() && name.Start.Before(start) {
		return false
	}
	if !end.IsZero() && !name.Start.Before(end) {
		return false
	}
	return true
}

// Dedup drops repeated keys. A key keeps the position it was first seen at
// and the size it was last seen with.
func Dedup(objects []inventory.Object) []inventory.Object {
	index := make(map[string]int, len(objects))
	result := make([]inventory.Object, 0, len(objects))
	for _, obj := range objects {
		path := obj.Path()
		if i, seen := index[path]; seen {
			result[i].Size = obj.Size
			continue
		}
		index[path] = len(result)
		result = append(result, obj)
	}
	return result
}

// NewNameFilter builds a file name predicate from glob patterns. A name is
// accepted when it matches one of includes (or includes is empty) and none
// of excludes.
func NewNameFilter(includes, excludes []string) (func(string) bool, error) {
	for _, pattern := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	if len(includes) == 0 && len(excludes) == 0 {
		return nil, nil
	}

	return func(name string) bool {
		if len(includes) > 0 && !matchesAny(name, includes) {
			return false
		}
		return !matchesAny(name, excludes)
	}, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, name) {
			return true
		}
	}
	return false
}
