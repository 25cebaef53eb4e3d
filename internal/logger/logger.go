// Package logger provides the process-wide structured logger for weft.
// Output goes to a file so that stdout stays free for the serve transport.
//
// Components take a *slog.Logger from ComponentLogger or WithWorkspace and
// keep it; the file is opened on first use unless Init named another.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel is the minimum severity written to the log file.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu       sync.Mutex
	base     *slog.Logger
	file     *os.File
	path     string
	level    = LevelInfo
	levelVar = new(slog.LevelVar)
)

// DefaultLogPath is the log file of every command but askpass.
var DefaultLogPath = filepath.Join(os.TempDir(), "weft-debug.log")

// AskpassLogPath returns the log path for an askpass helper invocation.
// The helper runs as a child of git and must not write to the terminal.
func AskpassLogPath(pid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("weft-askpass-%d.log", pid))
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a LogLevel.
// Unknown names map to LevelInfo.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel sets the minimum level written. It applies to loggers already
// handed out.
func SetLevel(l LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	levelVar.Set(l.slogLevel())
}

// SetDebug switches between debug and info level.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

// Init directs the log to p. It has no effect once the log is open.
func Init(p string) error {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return nil
	}
	return openLocked(p)
}

func openLocked(p string) error {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", p, err)
	}
	file, path = f, p
	levelVar.Set(level.slogLevel())
	base = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	base.Info("Logger initialized", "path", p, "pid", os.Getpid())
	return nil
}

// loggerLocked returns the base logger, opening DefaultLogPath on first use.
// When no file can be opened logging is discarded.
func loggerLocked() *slog.Logger {
	if base == nil {
		if err := openLocked(DefaultLogPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			base = slog.New(slog.DiscardHandler)
		}
	}
	return base
}

// Path returns the file being written, or "" before the first log line.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return path
}

// Close closes the log file. Later log lines are discarded until Reset.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	base = slog.New(slog.DiscardHandler)
}

// Reset returns the logger to its initial state so tests can Init again.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	base = nil
	path = ""
	level = LevelInfo
	levelVar = new(slog.LevelVar)
}

// LogFiles returns the weft log files in dir.
func LogFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"weft-debug.log", "weft-askpass-*.log"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

// ClearLogs removes weft's log files from the temp directory and returns
// how many were removed.
func ClearLogs() (int, error) {
	files, err := LogFiles(os.TempDir())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, f := range files {
		if err := os.Remove(f); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}
	return count, nil
}

// ComponentLogger returns a logger tagged with component.
//
//	log := logger.ComponentLogger("Worker")
//	log.Info("Workspace opened", "root", root, "op", opID)
func ComponentLogger(component string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return loggerLocked().With(slog.String("component", component))
}

// WithWorkspace returns a logger tagged with a workspace root. Each open
// workspace has its own worker goroutine, so log lines from different
// workspaces are told apart by this attribute.
func WithWorkspace(root string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return loggerLocked().With(slog.String("workspace", root))
}
