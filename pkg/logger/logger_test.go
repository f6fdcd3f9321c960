package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLogger(dryRun, quiet bool) (*SyncLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return &SyncLogger{IsDryRun: dryRun, IsQuiet: quiet, Logger: l}, buf
}

func TestSyncLoggerDownload(t *testing.T) {
	tests := []struct {
		name    string
		dryRun  bool
		quiet   bool
		want    string
		wantNil bool
	}{
		{name: "normal", want: "download: s3://noaa-goes16/a.nc to /data/a.nc"},
		{name: "dry run", dryRun: true, want: "(dryrun) download: s3://noaa-goes16/a.nc"},
		{name: "quiet", quiet: true, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newTestLogger(tt.dryRun, tt.quiet)
			l.Download("s3://noaa-goes16/a.nc", "/data/a.nc")
			if tt.wantNil {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestSyncLoggerErrorIsNeverQuiet(t *testing.T) {
	l, buf := newTestLogger(false, true)
	l.Error("download", "s3://noaa-goes16/a.nc", errors.New("connection reset"))
	assert.Contains(t, buf.String(), "download failed: s3://noaa-goes16/a.nc")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestSyncLoggerSummary(t *testing.T) {
	l, buf := newTestLogger(false, true)
	l.Summary(Stats{Completed: 2, Skipped: 1})
	assert.Empty(t, buf.String())

	l.Summary(Stats{Completed: 2, Skipped: 1, Failed: 1, Bytes: 2048, Duration: time.Second})
	assert.Contains(t, buf.String(), "downloaded 2 files (2.0 KB), skipped 1, failed 1")
	assert.Contains(t, buf.String(), "level=warning")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{64 * 1024 * 1024, "64.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}
