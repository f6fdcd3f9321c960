package logger

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger receives one call per user visible event of a mirror or migrate run.
// Implementations must be safe for concurrent use.
type Logger interface {
	Download(source, target string)
	Skip(source, reason string)
	Move(from, to string)
	Conflict(from, to string)
	Error(operation, path string, err error)
	Debug(message string)
}

// SyncLogger writes events through logrus in the style of `aws s3 sync`.
type SyncLogger struct {
	IsDryRun bool
	IsQuiet  bool
	Logger   *logrus.Logger
}

func (l *SyncLogger) base() *logrus.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logrus.StandardLogger()
}

func (l *SyncLogger) prefix() string {
	if l.IsDryRun {
		return "(dryrun) "
	}
	return ""
}

func (l *SyncLogger) Download(source, target string) {
	if l.IsQuiet {
		return
	}
	l.base().WithFields(logrus.Fields{"source": source, "target": target}).
		Infof("%sdownload: %s to %s", l.prefix(), source, target)
}

func (l *SyncLogger) Skip(source, reason string) {
	l.base().WithField("reason", reason).Debugf("skip: %s (%s)", source, reason)
}

func (l *SyncLogger) Move(from, to string) {
	if l.IsQuiet {
		return
	}
	l.base().WithFields(logrus.Fields{"from": from, "to": to}).
		Infof("%smove: %s to %s", l.prefix(), from, to)
}

func (l *SyncLogger) Conflict(from, to string) {
	l.base().WithFields(logrus.Fields{"from": from, "to": to}).
		Warnf("%sconflict: %s not moved, %s already exists", l.prefix(), from, to)
}

func (l *SyncLogger) Error(operation, path string, err error) {
	l.base().WithError(err).WithField("operation", operation).
		Errorf("%s failed: %s", operation, path)
}

func (l *SyncLogger) Debug(message string) {
	l.base().Debug(message)
}

// Stats are the totals printed at the end of a mirror run.
type Stats struct {
	Skipped   int
	Completed int
	Failed    int
	Bytes     int64
	Duration  time.Duration
}

// Summary prints the totals of a mirror run. Quiet loggers only print it when
// something failed.
func (l *SyncLogger) Summary(stats Stats) {
	if l.IsQuiet && stats.Failed == 0 {
		return
	}

	entry := l.base().WithFields(logrus.Fields{
		"skipped":   stats.Skipped,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"bytes":     stats.Bytes,
	})
	msg := fmt.Sprintf("%sdownloaded %d files (%s), skipped %d, failed %d in %s",
		l.prefix(), stats.Completed, FormatBytes(stats.Bytes), stats.Skipped, stats.Failed,
		stats.Duration.Round(time.Millisecond))
	if stats.Failed > 0 {
		entry.Warn(msg)
		return
	}
	entry.Info(msg)
}

// MigrationSummary prints the totals of a migrate run.
func (l *SyncLogger) MigrationSummary(moved, conflicts, unrecognized int) {
	if l.IsQuiet && conflicts == 0 {
		return
	}
	l.base().WithFields(logrus.Fields{
		"moved":        moved,
		"conflicts":    conflicts,
		"unrecognized": unrecognized,
	}).Infof("%smoved %d files, %d conflicts, %d unrecognized", l.prefix(), moved, conflicts, unrecognized)
}

// NullLogger discards every event.
type NullLogger struct{}

func (l *NullLogger) Download(source, target string)          {}
func (l *NullLogger) Skip(source, reason string)              {}
func (l *NullLogger) Move(from, to string)                    {}
func (l *NullLogger) Conflict(from, to string)                {}
func (l *NullLogger) Error(operation, path string, err error) {}
func (l *NullLogger) Debug(message string)                    {}

// FormatBytes formats bytes in human readable form.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var (
	_ Logger = (*SyncLogger)(nil)
	_ Logger = (*NullLogger)(nil)
)
