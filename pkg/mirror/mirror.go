// Package mirror downloads the GOES archive objects of a time range into a
// local directory tree that mirrors the bucket layout.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/yuya-takeyama/goes-mirror/pkg/executor"
	"github.com/yuya-takeyama/goes-mirror/pkg/inventory"
	"github.com/yuya-takeyama/goes-mirror/pkg/keyscheme"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
	"github.com/yuya-takeyama/goes-mirror/pkg/planner"
	"github.com/yuya-takeyama/goes-mirror/pkg/s3client"
)

type Request struct {
	LocalRoot string
	Products  []string
	// Start is inclusive, End exclusive. Both are compared in UTC.
	Start time.Time
	End   time.Time
	// Platforms defaults to keyscheme.DefaultPlatforms when empty.
	Platforms  []string
	NameFilter func(name string) bool
	Overwrite  bool
	DryRun     bool
}

// Validate reports every problem with the request at once.
func (r Request) Validate() error {
	var result error
	if r.LocalRoot == "" {
		result = multierror.Append(result, fmt.Errorf("local root must not be empty"))
	}
	if len(r.Products) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one product is required"))
	}
	for _, product := range r.Products {
		if product == "" {
			result = multierror.Append(result, fmt.Errorf("product must not be empty"))
		}
	}
	if r.Start.IsZero() || r.End.IsZero() {
		result = multierror.Append(result, fmt.Errorf("start and end are required"))
	} else if !r.End.After(r.Start) {
		result = multierror.Append(result, fmt.Errorf("end %s must be after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339)))
	}
	for _, platform := range r.Platforms {
		if err := keyscheme.ValidatePlatform(platform); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func (r Request) platforms() []string {
	if len(r.Platforms) == 0 {
		return keyscheme.DefaultPlatforms()
	}
	return r.Platforms
}

func (r Request) plannerOptions() planner.Options {
	return planner.Options{
		LocalRoot:  r.LocalRoot,
		Overwrite:  r.Overwrite,
		NameFilter: r.NameFilter,
		Start:      r.Start.UTC(),
		End:        r.End.UTC(),
	}
}

type Summary struct {
	Skipped   int
	Completed int
	Failed    int
	// Planned counts the transfers a dry run would have made.
	Planned  int
	Bytes    int64
	Failures []executor.Outcome
	Duration time.Duration
}

func (s *Summary) add(o executor.Outcome) {
	switch o.Result {
	case executor.ResultSkipped:
		s.Skipped++
	case executor.ResultCompleted:
		s.Completed++
	case executor.ResultFailed:
		s.Failed++
		s.Failures = append(s.Failures, o)
	}
	s.Bytes += o.Bytes
}

// Stats converts the summary for logger.SyncLogger.Summary.
func (s *Summary) Stats() logger.Stats {
	return logger.Stats{
		Skipped:   s.Skipped,
		Completed: s.Completed + s.Planned,
		Failed:    s.Failed,
		Bytes:     s.Bytes,
		Duration:  s.Duration,
	}
}

type Mirror struct {
	lister   *inventory.Lister
	planner  *planner.Planner
	executor *executor.Executor
	logger   logger.Logger
}

func New(client s3client.Client, fs afero.Fs, logger logger.Logger, opts executor.Options) *Mirror {
	return &Mirror{
		lister:   inventory.NewLister(client, logger),
		planner:  planner.NewPlanner(fs, logger),
		executor: executor.NewExecutor(client, fs, logger, opts),
		logger:   logger,
	}
}

// Inventory lists every object of the request. It fails without returning
// objects if any prefix cannot be listed.
func (m *Mirror) Inventory(ctx context.Context, req Request) ([]inventory.Object, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prefixes := keyscheme.PrefixesFor(req.platforms(), req.Products, req.Start, req.End)
	m.logger.Debug(fmt.Sprintf("listing %d prefixes", len(prefixes)))

	objects, err := m.lister.Collect(ctx, prefixes)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote objects: %w", err)
	}
	return objects, nil
}

// Plan lists the request and returns one task per distinct object.
func (m *Mirror) Plan(ctx context.Context, req Request) ([]planner.Task, error) {
	objects, err := m.Inventory(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.planner.Tasks(ctx, objects, req.plannerOptions())
}

// Run lists, plans and transfers the request. Tasks are handed to the
// executor as they are planned. report, if not nil, receives every outcome.
// Failed transfers are counted in the summary and do not fail the run.
func (m *Mirror) Run(ctx context.Context, req Request, report func(executor.Outcome)) (*Summary, error) {
	started := time.Now()

	objects, err := m.Inventory(ctx, req)
	if err != nil {
		return nil, err
	}
	opts := req.plannerOptions()

	if req.DryRun {
		summary := &Summary{}
		err := m.planner.Plan(ctx, objects, opts, func(task planner.Task) error {
			m.preview(summary, task)
			return nil
		})
		summary.Duration = time.Since(started)
		if err != nil {
			return nil, err
		}
		return summary, nil
	}

	summary, err := m.execute(ctx, func(send func(planner.Task) error) error {
		return m.planner.Plan(ctx, objects, opts, send)
	}, report)
	if summary != nil {
		summary.Duration = time.Since(started)
	}
	return summary, err
}

// Preview logs the transfers a plan would make without touching anything.
func (m *Mirror) Preview(tasks []planner.Task) *Summary {
	summary := &Summary{}
	for _, task := range tasks {
		m.preview(summary, task)
	}
	return summary
}

func (m *Mirror) preview(summary *Summary, task planner.Task) {
	if task.NeedsTransfer() {
		m.logger.Download(task.Object.URI(), task.Target.AbsolutePath)
		summary.Planned++
		return
	}
	summary.Skipped++
}

// Execute transfers an already computed plan.
func (m *Mirror) Execute(ctx context.Context, tasks []planner.Task, report func(executor.Outcome)) (*Summary, error) {
	started := time.Now()
	summary, err := m.execute(ctx, func(send func(planner.Task) error) error {
		for _, task := range tasks {
			if err := send(task); err != nil {
				return err
			}
		}
		return nil
	}, report)
	if summary != nil {
		summary.Duration = time.Since(started)
	}
	return summary, err
}

func (m *Mirror) execute(ctx context.Context, produce func(send func(planner.Task) error) error, report func(executor.Outcome)) (*Summary, error) {
	ch := make(chan planner.Task)
	produced := make(chan error, 1)
	go func() {
		defer close(ch)
		produced <- produce(func(task planner.Task) error {
			select {
			case ch <- task:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	summary := &Summary{}
	runErr := m.executor.Run(ctx, ch, func(o executor.Outcome) {
		summary.add(o)
		if report != nil {
			report(o)
		}
	})

	// Run returns early only on cancellation; the producer then stops at its
	// next send.
	if err := <-produced; err != nil {
		return summary, err
	}
	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}
