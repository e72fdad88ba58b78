// Package logger provides the bridge's file-backed logger. MCP owns the
// process's stdout, so nothing may ever be printed there; everything goes to
// the configured log file (and stderr for errors).
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LoggerConfig controls log destination, verbosity and rotation.
type LoggerConfig struct {
	LogPath     string
	LogLevel    string
	MaxLogFiles int
}

var (
	mu      sync.Mutex
	level   = LevelInfo
	file    *os.File
	backend *log.Logger
)

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// InitLogger opens the log file, rotating any previous one out of the way.
// Safe to call again; the previous file is closed first.
func InitLogger(cfg LoggerConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}

	level = parseLevel(cfg.LogLevel)

	if cfg.LogPath == "" {
		// No file configured: errors still reach stderr via the write path.
		backend = nil
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	rotate(cfg.LogPath, cfg.MaxLogFiles)

	f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", cfg.LogPath, err)
	}

	file = f
	backend = log.New(f, "", log.LstdFlags|log.Lmicroseconds)

	return nil
}

// rotate renames an existing log file to a timestamped sibling and prunes old
// rotations beyond maxFiles.
func rotate(path string, maxFiles int) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	rotated := fmt.Sprintf("%s.%s", path, time.Now().Format("20060102-150405"))
	if err := os.Rename(path, rotated); err != nil {
		return
	}

	if maxFiles <= 0 {
		return
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil || len(matches) <= maxFiles {
		return
	}

	sort.Strings(matches)
	for _, old := range matches[:len(matches)-maxFiles] {
		os.Remove(old)
	}
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
		backend = nil
	}
}

func write(lvl Level, prefix string, args []any) {
	mu.Lock()
	defer mu.Unlock()

	if lvl < level {
		return
	}

	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	line := prefix + " " + strings.Join(parts, " ")

	if backend != nil {
		backend.Println(line)
	}
	if lvl >= LevelError {
		fmt.Fprintln(os.Stderr, line)
	}
}

func Debug(args ...any) { write(LevelDebug, "DEBUG", args) }
func Info(args ...any)  { write(LevelInfo, "INFO", args) }
func Warn(args ...any)  { write(LevelWarn, "WARN", args) }
func Error(args ...any) { write(LevelError, "ERROR", args) }
