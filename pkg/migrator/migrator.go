// Package migrator moves already downloaded archive files into the canonical
// mirror layout, using nothing but their file names.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/goes-mirror/internal/walker"
	"github.com/yuya-takeyama/goes-mirror/pkg/keyscheme"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
)

type Options struct {
	// Root is the mirror root files are moved under.
	Root string
	// Source is the directory walked for files. Empty means Root.
	Source   string
	DryRun   bool
	Excludes []string
}

// Candidate is a recognized file that is not at its canonical location.
type Candidate struct {
	CurrentPath  string
	RelativePath string
	TargetPath   string
}

type Result struct {
	Candidate
	Applied  bool
	Conflict bool
	Err      error
}

// Unrecognized is a file whose name does not follow the archive convention.
// It is never touched.
type Unrecognized struct {
	Path string
	Err  error
}

type Report struct {
	Results      []Result
	Unrecognized []Unrecognized
	InPlace      int
}

// Moved counts results that were applied.
func (r *Report) Moved() int {
	n := 0
	for _, res := range r.Results {
		if res.Applied {
			n++
		}
	}
	return n
}

// Conflicts counts results left in place because the target was taken.
func (r *Report) Conflicts() int {
	n := 0
	for _, res := range r.Results {
		if res.Conflict {
			n++
		}
	}
	return n
}

type Migrator struct {
	fs     afero.Fs
	logger logger.Logger
}

func NewMigrator(fs afero.Fs, logger logger.Logger) *Migrator {
	return &Migrator{
		fs:     fs,
		logger: logger,
	}
}

// Migrate walks the source tree, then moves every candidate whose target is
// free. The walk completes before the first move.
func (m *Migrator) Migrate(ctx context.Context, opts Options) (*Report, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root must not be empty")
	}
	source := opts.Source
	if source == "" {
		source = opts.Root
	}

	w, err := walker.NewWalker(m.fs, source, opts.Excludes)
	if err != nil {
		return nil, err
	}
	files, err := w.Walk()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var candidates []Candidate
	for _, file := range files {
		rel, err := keyscheme.InferRelativePath(filepath.Base(file.Path))
		if err != nil {
			var unrecognized *keyscheme.UnrecognizedNameError
			if !errors.As(err, &unrecognized) {
				return nil, err
			}
			m.logger.Debug(fmt.Sprintf("leaving %s: %v", file.Path, err))
			report.Unrecognized = append(report.Unrecognized, Unrecognized{Path: file.Path, Err: err})
			continue
		}

		target := filepath.Join(opts.Root, filepath.FromSlash(rel))
		if filepath.Clean(file.Path) == target {
			report.InPlace++
			continue
		}
		candidates = append(candidates, Candidate{
			CurrentPath:  file.Path,
			RelativePath: rel,
			TargetPath:   target,
		})
	}

	claimed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, m.apply(c, opts.DryRun, claimed))
	}
	return report, nil
}

func (m *Migrator) apply(c Candidate, dryRun bool, claimed map[string]bool) Result {
	res := Result{Candidate: c}

	taken, err := afero.Exists(m.fs, c.TargetPath)
	if err != nil {
		res.Err = fmt.Errorf("failed to stat %s: %w", c.TargetPath, err)
		m.logger.Error("move", c.CurrentPath, res.Err)
		return res
	}
	if taken || claimed[c.TargetPath] {
		res.Conflict = true
		m.logger.Conflict(c.CurrentPath, c.TargetPath)
		return res
	}
	claimed[c.TargetPath] = true

	m.logger.Move(c.CurrentPath, c.TargetPath)
	if dryRun {
		return res
	}

	if err := m.fs.MkdirAll(filepath.Dir(c.TargetPath), 0o755); err != nil {
		res.Err = fmt.Errorf("failed to create directory for %s: %w", c.TargetPath, err)
		m.logger.Error("move", c.CurrentPath, res.Err)
		return res
	}
	if err := m.fs.Rename(c.CurrentPath, c.TargetPath); err != nil {
		res.Err = fmt.Errorf("failed to move %s to %s: %w", c.CurrentPath, c.TargetPath, err)
		m.logger.Error("move", c.CurrentPath, res.Err)
		return res
	}
	res.Applied = true
	return res
}
