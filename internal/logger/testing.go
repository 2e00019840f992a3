package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewTestLogger returns a module logger writing text records to w, without any files.
func NewTestLogger(w io.Writer, level LogLevel) Logger {
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newTextHandler(w, lvl, time.UTC)),
		level:  lvl,
	}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return NewTestLogger(io.Discard, LogLevelError)
}
