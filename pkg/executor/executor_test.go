package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/goes-mirror/pkg/inventory"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
	"github.com/yuya-takeyama/goes-mirror/pkg/planner"
	"github.com/yuya-takeyama/goes-mirror/pkg/s3client"
)

type mockS3Client struct {
	getObjectFunc func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error)
}

func (m *mockS3Client) ListObjects(ctx context.Context, req *s3client.ListObjectsRequest, fn func([]s3client.ItemMetadata) error) error {
	return fmt.Errorf("ListObjects not implemented")
}

func (m *mockS3Client) GetObject(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, req)
	}
	return nil, fmt.Errorf("GetObject not implemented")
}

type mockDownloadClient struct {
	mockS3Client
	downloadFunc func(ctx context.Context, req *s3client.GetObjectRequest, w io.WriterAt) (int64, error)
}

func (m *mockDownloadClient) Download(ctx context.Context, req *s3client.GetObjectRequest, w io.WriterAt) (int64, error) {
	return m.downloadFunc(ctx, req, w)
}

// contentClient serves objects from a map keyed by bucket/key.
func contentClient(objects map[string][]byte) *mockS3Client {
	return &mockS3Client{
		getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
			data, ok := objects[req.Bucket+"/"+req.Key]
			if !ok {
				return nil, &s3client.StoreUnavailableError{Op: "get", Bucket: req.Bucket, Key: req.Key, Err: errors.New("NoSuchKey")}
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// failingReader returns data and then err.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

const testRoot = "/mirror"

func newTask(key string, size int64, decision planner.Decision) planner.Task {
	obj := inventory.Object{Bucket: "noaa-goes16", Key: key, Size: size}
	return planner.Task{
		Object:   obj,
		Target:   planner.TargetFor(testRoot, obj),
		Decision: decision,
	}
}

func outcomesByKey(outcomes []Outcome) map[string]Outcome {
	m := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		m[o.Task.Object.Key] = o
	}
	return m
}

func listDir(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func TestExecuteCompletesAndSkips(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetch := newTask("ABI-L1b-RadF/2020/103/00/a.nc", 5, planner.DecisionFetch)
	skip := newTask("ABI-L1b-RadF/2020/103/00/b.nc", 7, planner.DecisionSkip)

	client := contentClient(map[string][]byte{
		"noaa-goes16/ABI-L1b-RadF/2020/103/00/a.nc": []byte("hello"),
	})
	exec := NewExecutor(client, fs, &logger.NullLogger{}, Options{Concurrency: 2})

	results, err := exec.Execute(context.Background(), []planner.Task{fetch, skip})
	require.NoError(t, err)
	outcomes := outcomesByKey(results)
	require.Len(t, outcomes, 2)

	got := outcomes[fetch.Object.Key]
	assert.Equal(t, ResultCompleted, got.Result)
	assert.NoError(t, got.Err)
	assert.Equal(t, int64(5), got.Bytes)

	data, err := afero.ReadFile(fs, fetch.Target.AbsolutePath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Equal(t, ResultSkipped, outcomes[skip.Object.Key].Result)
	exists, err := afero.Exists(fs, skip.Target.AbsolutePath)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []string{"a.nc"}, listDir(t, fs, filepath.Dir(fetch.Target.AbsolutePath)))
}

func TestExecuteTruncatedStream(t *testing.T) {
	tests := []struct {
		name     string
		body     func() io.Reader
		previous []byte
		decision planner.Decision
	}{
		{
			name:     "short stream to new file",
			body:     func() io.Reader { return strings.NewReader(strings.Repeat("x", 300)) },
			decision: planner.DecisionFetch,
		},
		{
			name:     "stream error keeps previous content",
			body:     func() io.Reader { return &failingReader{data: []byte("partial"), err: io.ErrUnexpectedEOF} },
			previous: []byte("old content"),
			decision: planner.DecisionOverwriteFetch,
		},
		{
			name:     "long stream",
			body:     func() io.Reader { return strings.NewReader(strings.Repeat("x", 501)) },
			decision: planner.DecisionFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			task := newTask("ABI-L1b-RadF/2020/103/00/a.nc", 500, tt.decision)
			dir := filepath.Dir(task.Target.AbsolutePath)
			if tt.previous != nil {
				require.NoError(t, fs.MkdirAll(dir, 0o755))
				require.NoError(t, afero.WriteFile(fs, task.Target.AbsolutePath, tt.previous, 0o644))
			}

			client := &mockS3Client{
				getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
					return io.NopCloser(tt.body()), nil
				},
			}
			exec := NewExecutor(client, fs, &logger.NullLogger{}, Options{Concurrency: 1})
			outcomes, err := exec.Execute(context.Background(), []planner.Task{task})
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.Equal(t, ResultFailed, outcomes[0].Result)

			var incomplete *IncompleteTransferError
			require.ErrorAs(t, outcomes[0].Err, &incomplete)
			assert.Equal(t, int64(500), incomplete.Expected)

			if tt.previous == nil {
				exists, err := afero.Exists(fs, task.Target.AbsolutePath)
				require.NoError(t, err)
				assert.False(t, exists)
				assert.Empty(t, listDir(t, fs, dir))
				return
			}
			data, err := afero.ReadFile(fs, task.Target.AbsolutePath)
			require.NoError(t, err)
			assert.Equal(t, tt.previous, data)
			assert.Equal(t, []string{"a.nc"}, listDir(t, fs, dir))
		})
	}
}

func TestExecuteIsolatesFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	tasks := []planner.Task{
		newTask("ABI-L1b-RadF/2020/103/00/a.nc", 3, planner.DecisionFetch),
		newTask("ABI-L1b-RadF/2020/103/00/missing.nc", 3, planner.DecisionFetch),
		newTask("ABI-L1b-RadF/2020/103/01/c.nc", 3, planner.DecisionFetch),
	}
	client := contentClient(map[string][]byte{
		"noaa-goes16/ABI-L1b-RadF/2020/103/00/a.nc": []byte("aaa"),
		"noaa-goes16/ABI-L1b-RadF/2020/103/01/c.nc": []byte("ccc"),
	})

	exec := NewExecutor(client, fs, &logger.NullLogger{}, Options{Concurrency: 3})
	results, err := exec.Execute(context.Background(), tasks)
	require.NoError(t, err)
	outcomes := outcomesByKey(results)

	assert.Equal(t, ResultCompleted, outcomes[tasks[0].Object.Key].Result)
	assert.Equal(t, ResultCompleted, outcomes[tasks[2].Object.Key].Result)

	failed := outcomes[tasks[1].Object.Key]
	assert.Equal(t, ResultFailed, failed.Result)
	assert.True(t, s3client.IsStoreUnavailable(failed.Err))
}

func TestExecuteRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, maxInFlight int32
	client := &mockS3Client{
		getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxInFlight)
				if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}

	var tasks []planner.Task
	for i := range 8 {
		tasks = append(tasks, newTask(fmt.Sprintf("ABI-L1b-RadF/2020/103/00/%d.nc", i), 1, planner.DecisionFetch))
	}

	exec := NewExecutor(client, afero.NewMemMapFs(), &logger.NullLogger{}, Options{Concurrency: 2})
	outcomes, err := exec.Execute(context.Background(), tasks)
	require.NoError(t, err)

	assert.Len(t, outcomes, 8)
	for _, o := range outcomes {
		assert.Equal(t, ResultCompleted, o.Result)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestRunStopsPullingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	client := &mockS3Client{
		getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
			<-release
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
	fs := afero.NewMemMapFs()
	exec := NewExecutor(client, fs, &logger.NullLogger{}, Options{Concurrency: 1})

	tasks := make(chan planner.Task, 2)
	first := newTask("ABI-L1b-RadF/2020/103/00/first.nc", 1, planner.DecisionFetch)
	second := newTask("ABI-L1b-RadF/2020/103/00/second.nc", 1, planner.DecisionFetch)
	tasks <- first
	tasks <- second
	close(tasks)

	var mu sync.Mutex
	var outcomes []Outcome
	done := make(chan error)
	go func() {
		done <- exec.Run(ctx, tasks, func(o Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		})
	}()

	// The first transfer holds the only slot; cancel while it is in flight.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, first.Object.Key, outcomes[0].Task.Object.Key)
	assert.Equal(t, ResultCompleted, outcomes[0].Result)

	exists, err := afero.Exists(fs, second.Target.AbsolutePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExecuteReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockS3Client{
		getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
			t.Errorf("unexpected GetObject for %s", req.Key)
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
	exec := NewExecutor(client, afero.NewMemMapFs(), &logger.NullLogger{}, Options{Concurrency: 1})

	outcomes, err := exec.Execute(ctx, []planner.Task{
		newTask("ABI-L1b-RadF/2020/103/00/a.nc", 1, planner.DecisionFetch),
		newTask("ABI-L1b-RadF/2020/103/00/b.nc", 1, planner.DecisionFetch),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}

func TestExecuteUsesDownloaderAboveThreshold(t *testing.T) {
	var gets, downloads int32
	client := &mockDownloadClient{
		mockS3Client: mockS3Client{
			getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
				atomic.AddInt32(&gets, 1)
				return io.NopCloser(strings.NewReader("abc")), nil
			},
		},
		downloadFunc: func(ctx context.Context, req *s3client.GetObjectRequest, w io.WriterAt) (int64, error) {
			atomic.AddInt32(&downloads, 1)
			// parts may arrive out of order
			if _, err := w.WriteAt([]byte("6789"), 6); err != nil {
				return 0, err
			}
			if _, err := w.WriteAt([]byte("012345"), 0); err != nil {
				return 4, err
			}
			return 10, nil
		},
	}

	fs := afero.NewMemMapFs()
	small := newTask("ABI-L1b-RadF/2020/103/00/small.nc", 3, planner.DecisionFetch)
	large := newTask("ABI-L1b-RadF/2020/103/00/large.nc", 10, planner.DecisionFetch)

	exec := NewExecutor(client, fs, &logger.NullLogger{}, Options{Concurrency: 2, MultipartThreshold: 10})
	results, err := exec.Execute(context.Background(), []planner.Task{small, large})
	require.NoError(t, err)
	outcomes := outcomesByKey(results)

	assert.Equal(t, ResultCompleted, outcomes[small.Object.Key].Result)
	assert.Equal(t, ResultCompleted, outcomes[large.Object.Key].Result)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gets))
	assert.Equal(t, int32(1), atomic.LoadInt32(&downloads))

	data, err := afero.ReadFile(fs, large.Target.AbsolutePath)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestExecuteOnOsFs(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()

	obj := inventory.Object{Bucket: "noaa-goes16", Key: "ABI-L1b-RadF/2020/103/00/OR_ABI-L1b-RadF-M6C09_G16_s20201030000.nc", Size: 4}
	task := planner.Task{Object: obj, Target: planner.TargetFor(root, obj), Decision: planner.DecisionOverwriteFetch}

	require.NoError(t, fs.MkdirAll(filepath.Dir(task.Target.AbsolutePath), 0o755))
	require.NoError(t, afero.WriteFile(fs, task.Target.AbsolutePath, []byte("stale content"), 0o644))

	client := contentClient(map[string][]byte{obj.Path(): []byte("new!")})
	exec := NewExecutor(client, fs, &logger.NullLogger{}, Options{})
	outcomes, err := exec.Execute(context.Background(), []planner.Task{task})
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	data, err := afero.ReadFile(fs, task.Target.AbsolutePath)
	require.NoError(t, err)
	assert.Equal(t, "new!", string(data))
	assert.Equal(t, []string{filepath.Base(task.Target.AbsolutePath)}, listDir(t, fs, filepath.Dir(task.Target.AbsolutePath)))
}

func TestIncompleteTransferError(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := fmt.Errorf("task: %w", &IncompleteTransferError{Key: "noaa-goes16/a.nc", Expected: 10, Written: 4, Err: cause})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "wrote 4 of 10 bytes")

	var incomplete *IncompleteTransferError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, int64(10), incomplete.Expected)
}
