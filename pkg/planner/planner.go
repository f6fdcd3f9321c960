package planner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
	"github.com/yuya-takeyama/goes-mirror/pkg/inventory"
	"github.com/yuya-takeyama/goes-mirror/pkg/keyscheme"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
)

type Planner struct {
	fs     afero.Fs
	logger logger.Logger
}

func NewPlanner(fs afero.Fs, logger logger.Logger) *Planner {
	return &Planner{
		fs:     fs,
		logger: logger,
	}
}

// Plan decides every object in listing order and passes each task to fn.
// Duplicate keys are planned once. Objects whose key resolves outside the
// local root, or that are rejected by the name filter or the time window, are
// never probed on the local filesystem.
func (p *Planner) Plan(ctx context.Context, objects []inventory.Object, opts Options, fn func(Task) error) error {
	if opts.LocalRoot == "" {
		return fmt.Errorf("local root must not be empty")
	}

	for _, obj := range Dedup(objects) {
		if err := ctx.Err(); err != nil {
			return err
		}

		task := p.planOne(obj, opts)
		if err := fn(task); err != nil {
			return err
		}
	}
	return nil
}

// Tasks returns the whole plan.
func (p *Planner) Tasks(ctx context.Context, objects []inventory.Object, opts Options) ([]Task, error) {
	tasks := make([]Task, 0, len(objects))
	err := p.Plan(ctx, objects, opts, func(task Task) error {
		tasks = append(tasks, task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (p *Planner) planOne(obj inventory.Object, opts Options) Task {
	task := Task{
		Object: obj,
		Target: TargetFor(opts.LocalRoot, obj),
	}

	if !WithinRoot(task.Target.RelativePath) {
		task.Decision, task.Reason = DecisionSkip, ReasonOutsideRoot
		p.logger.Debug(fmt.Sprintf("plan %s: %s (%s)", obj.URI(), task.Decision, task.Reason))
		return task
	}

	name := keyscheme.FilenameOf(obj.Key)
	if opts.NameFilter != nil && !opts.NameFilter(name) {
		task.Decision, task.Reason = DecisionSkip, ReasonFiltered
		return task
	}
	if !InWindow(name, opts.Start, opts.End) {
		task.Decision, task.Reason = DecisionSkip, ReasonOutsideRange
		return task
	}

	task.Decision, task.Reason = Decide(p.probe(task.Target.AbsolutePath), obj.Size, opts.Overwrite)
	p.logger.Debug(fmt.Sprintf("plan %s: %s (%s)", obj.URI(), task.Decision, task.Reason))
	return task
}

func (p *Planner) probe(path string) LocalState {
	info, err := p.fs.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return LocalState{}
	case err != nil:
		return LocalState{StatErr: err}
	case info.IsDir():
		return LocalState{Exists: true, StatErr: fmt.Errorf("%s is a directory", path)}
	default:
		return LocalState{Exists: true, Size: info.Size()}
	}
}
