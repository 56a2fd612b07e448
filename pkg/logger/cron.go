package logger

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts slog to cron.Logger so cron's job wrappers (SkipIfStillRunning, Recover)
// report through the process logger.
func CronLogger(l *slog.Logger) cron.Logger {
	if l == nil {
		l = slog.Default()
	}
	return cronLogger{l: l}
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cron's info lines (start, wake, run) are chatty; keep them at debug.
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
