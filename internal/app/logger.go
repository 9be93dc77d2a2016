package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}

// lazyFile is a writer that opens its target file in append mode on first
// write, creating parent directories as needed. The run-local log file lives
// inside the run directory, which does not exist yet when the logger is
// built; opening lazily avoids creating it ahead of the controller. Write
// errors are swallowed: a log mirror must never fail the run.
type lazyFile struct {
	path string

	mu     sync.Mutex
	f      *os.File
	broken bool
}

func newLazyFile(path string) *lazyFile {
	return &lazyFile{path: path}
}

func (l *lazyFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.broken {
		return len(p), nil
	}
	if l.f == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			l.broken = true
			return len(p), nil
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			l.broken = true
			return len(p), nil
		}
		l.f = f
	}
	l.f.Write(p)
	return len(p), nil
}
