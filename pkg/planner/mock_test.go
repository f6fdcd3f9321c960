package planner

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// statCountingFs records every Stat call made through it.
type statCountingFs struct {
	afero.Fs

	mu    sync.Mutex
	stats []string
}

func newStatCountingFs(fs afero.Fs) *statCountingFs {
	return &statCountingFs{Fs: fs}
}

func (f *statCountingFs) Stat(name string) (os.FileInfo, error) {
	f.mu.Lock()
	f.stats = append(f.stats, name)
	f.mu.Unlock()
	return f.Fs.Stat(name)
}

func (f *statCountingFs) statCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stats...)
}

// mockLogger is a mock implementation of logger.Logger for testing
type mockLogger struct {
	debugCalls []string
}

func (m *mockLogger) Download(source, target string)          {}
func (m *mockLogger) Skip(source, reason string)              {}
func (m *mockLogger) Move(from, to string)                    {}
func (m *mockLogger) Conflict(from, to string)                {}
func (m *mockLogger) Error(operation, path string, err error) {}

func (m *mockLogger) Debug(message string) {
	m.debugCalls = append(m.debugCalls, message)
}
