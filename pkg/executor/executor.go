package executor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
	"github.com/yuya-takeyama/goes-mirror/pkg/planner"
	"github.com/yuya-takeyama/goes-mirror/pkg/s3client"
)

const (
	DefaultConcurrency        = 8
	DefaultMultipartThreshold = 64 * 1024 * 1024
)

type Result string

const (
	ResultCompleted Result = "completed"
	ResultSkipped   Result = "skipped"
	ResultFailed    Result = "failed"
)

type Outcome struct {
	Task   planner.Task
	Result Result
	Err    error
	Bytes  int64
}

type Options struct {
	Concurrency int
	// MultipartThreshold is the object size from which clients implementing
	// s3client.Downloader fetch in ranged parts. Zero disables it.
	MultipartThreshold int64
}

type Executor struct {
	client             s3client.Client
	fs                 afero.Fs
	logger             logger.Logger
	concurrency        int
	multipartThreshold int64
}

func NewExecutor(client s3client.Client, fs afero.Fs, logger logger.Logger, opts Options) *Executor {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{
		client:             client,
		fs:                 fs,
		logger:             logger,
		concurrency:        concurrency,
		multipartThreshold: opts.MultipartThreshold,
	}
}

// Run consumes tasks until the channel is closed or ctx is cancelled, with at
// most Concurrency transfers in flight. report is called once per consumed
// task, never concurrently. Transfers already started when ctx is cancelled
// run to completion. Run returns ctx.Err() if it stopped early.
func (e *Executor) Run(ctx context.Context, tasks <-chan planner.Task, report func(Outcome)) error {
	sem := semaphore.NewWeighted(int64(e.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	emit := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		report(o)
	}

	detached := context.WithoutCancel(ctx)

loop:
	for {
		var task planner.Task
		var ok bool
		select {
		case <-ctx.Done():
			break loop
		case task, ok = <-tasks:
			if !ok {
				break loop
			}
		}

		if !task.NeedsTransfer() {
			e.logger.Skip(task.Object.URI(), task.Reason)
			emit(Outcome{Task: task, Result: ResultSkipped})
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break loop
		}

		wg.Add(1)
		go func(t planner.Task) {
			defer wg.Done()
			defer sem.Release(1)
			emit(e.transfer(detached, t))
		}(task)
	}

	wg.Wait()
	return ctx.Err()
}

// Execute runs every task and returns the outcomes in completion order. If
// ctx is cancelled first, the outcomes collected so far are returned with
// ctx.Err().
func (e *Executor) Execute(ctx context.Context, tasks []planner.Task) ([]Outcome, error) {
	ch := make(chan planner.Task)
	go func() {
		defer close(ch)
		for _, task := range tasks {
			select {
			case ch <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	outcomes := make([]Outcome, 0, len(tasks))
	err := e.Run(ctx, ch, func(o Outcome) {
		outcomes = append(outcomes, o)
	})
	return outcomes, err
}

func (e *Executor) transfer(ctx context.Context, task planner.Task) Outcome {
	e.logger.Download(task.Object.URI(), task.Target.AbsolutePath)

	written, err := e.download(ctx, task)
	if err != nil {
		e.logger.Error("download", task.Object.URI(), err)
		return Outcome{Task: task, Result: ResultFailed, Err: err, Bytes: written}
	}
	return Outcome{Task: task, Result: ResultCompleted, Bytes: written}
}

// download writes the object to a temporary file next to the target and
// renames it into place once the byte count matches the listed size.
func (e *Executor) download(ctx context.Context, task planner.Task) (int64, error) {
	finalPath := task.Target.AbsolutePath
	dir := filepath.Dir(finalPath)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(e.fs, dir, "."+filepath.Base(finalPath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	placed := false
	defer func() {
		if !placed {
			_ = tmp.Close()
			_ = e.fs.Remove(tmpPath)
		}
	}()

	written, err := e.fetch(ctx, task, tmp)
	if err != nil {
		return written, err
	}
	if written != task.Object.Size {
		return written, &IncompleteTransferError{Key: task.Object.Path(), Expected: task.Object.Size, Written: written}
	}

	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := e.fs.Rename(tmpPath, finalPath); err != nil {
		return written, fmt.Errorf("failed to rename %s to %s: %w", tmpPath, finalPath, err)
	}
	placed = true
	return written, nil
}

func (e *Executor) fetch(ctx context.Context, task planner.Task, w afero.File) (int64, error) {
	req := &s3client.GetObjectRequest{Bucket: task.Object.Bucket, Key: task.Object.Key}

	if d, ok := e.client.(s3client.Downloader); ok && e.multipartThreshold > 0 && task.Object.Size >= e.multipartThreshold {
		n, err := d.Download(ctx, req, w)
		if err != nil {
			return n, &IncompleteTransferError{Key: task.Object.Path(), Expected: task.Object.Size, Written: n, Err: err}
		}
		return n, nil
	}

	body, err := e.client.GetObject(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", task.Object.URI(), err)
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, &IncompleteTransferError{Key: task.Object.Path(), Expected: task.Object.Size, Written: n, Err: err}
	}
	return n, nil
}
