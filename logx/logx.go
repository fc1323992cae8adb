// Package logx provides a standard logger implementation for the toolbridge project.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/sciforge/toolbridge/types"
)

// Level controls which messages a DefaultLogger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// DefaultLogger provides a basic logger implementation using the standard log package.
// Messages are written with the level name followed by alternating key/value pairs.
type DefaultLogger struct {
	logger *log.Logger
	level  Level
	mu     sync.Mutex
}

// NewDefaultLogger creates a new logger writing to stderr with standard flags.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "[toolbridge] ", log.LstdFlags|log.Lmsgprefix),
		level:  LevelInfo,
	}
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
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

// SetLevel updates the logging level.
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *DefaultLogger) log(level Level, name, msg string, args ...interface{}) {
	l.mu.Lock()
	min := l.level
	l.mu.Unlock()
	if level < min {
		return
	}
	if len(args) == 0 {
		l.logger.Printf("%s: %s", name, msg)
		return
	}
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 != 0 {
		fmt.Fprintf(&b, " %v", args[len(args)-1])
	}
	l.logger.Printf("%s: %s%s", name, msg, b.String())
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, "DEBUG", msg, args...)
}
func (l *DefaultLogger) Info(msg string, args ...interface{}) { l.log(LevelInfo, "INFO", msg, args...) }
func (l *DefaultLogger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, "WARN", msg, args...) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, "ERROR", msg, args...)
}

// Ensure interface compliance
var _ types.Logger = (*DefaultLogger)(nil)

// Nop returns a logger that discards everything. Useful in tests and as the
// fallback when no logger is configured.
func Nop() types.Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
