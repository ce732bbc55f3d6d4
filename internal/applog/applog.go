// internal/applog/applog.go

// Package applog is the pipeline's own diagnostic logger. It writes to
// stdout and never goes through the dispatch layer, so a failing backend
// can always be reported.
package applog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level defines the available logging levels.
type Level int

const (
	TRACE Level = 10
	DEBUG Level = 20
	INFO  Level = 30
	WARN  Level = 40
	ERROR Level = 50
	FATAL Level = 60
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// NameToLevel maps string level names to level values.
var NameToLevel = map[string]Level{
	"TRACE": TRACE,
	"DEBUG": DEBUG,
	"INFO":  INFO,
	"WARN":  WARN,
	"ERROR": ERROR,
	"FATAL": FATAL,
}

// Logger is the application logger. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	writer io.Writer
	level  Level
	exit   func(int)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the singleton application logger.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{
			writer: os.Stdout,
			level:  WARN,
			exit:   os.Exit,
		}
	})
	return defaultLogger
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetLevelFromString sets the log level from a string name.
func (l *Logger) SetLevelFromString(name string) error {
	level, ok := NameToLevel[strings.ToUpper(name)]
	if !ok {
		return fmt.Errorf("invalid log level: %s", name)
	}
	l.SetLevel(level)
	return nil
}

// logf formats and writes a message if the level is sufficient.
// Formatting happens outside the lock; only the write is serialized.
func (l *Logger) logf(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	skip := level < l.level
	l.mu.Unlock()
	if skip {
		return
	}

	now := time.Now().Format("2006-01-02T15:04:05Z07:00")
	line := fmt.Sprintf("[%s] %s: %s\n", now, levelNames[level], fmt.Sprintf(format, args...))

	l.mu.Lock()
	_, _ = fmt.Fprint(l.writer, line)
	l.mu.Unlock()

	if level == FATAL {
		l.exit(1)
	}
}

// Trace logs a message at TRACE level.
func (l *Logger) Trace(format string, args ...interface{}) {
	l.logf(TRACE, format, args...)
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Fatal logs a message at FATAL level and exits the program.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.logf(FATAL, format, args...)
}
