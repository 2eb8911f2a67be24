package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "SILENT"}

var levelColors = [...]string{
	"\033[36m", // cyan
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[31m", // red
	"",
}

const resetColor = "\033[0m"

// Logger writes leveled, component-tagged log lines to a single sink.
type Logger struct {
	mu       sync.Mutex
	level    Level
	useColor bool
	sink     *log.Logger
}

var (
	defaultLogger *Logger
	initOnce      sync.Once
)

// Init installs the process-wide logger. Later calls are no-ops.
func Init(level Level, output io.Writer, useColor bool) {
	initOnce.Do(func() {
		defaultLogger = New(level, output, useColor)
	})
}

// New creates a Logger writing to output.
func New(level Level, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		level:    level,
		useColor: useColor,
		sink:     log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// SetLevel changes the minimum level emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// MinLevel returns the current minimum level.
func (l *Logger) MinLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) output(level Level, component, format string, args ...any) {
	l.mu.Lock()
	minLevel := l.level
	l.mu.Unlock()

	if level < minLevel || level >= LevelSilent {
		return
	}

	tag := fmt.Sprintf("[%s]", levelNames[level])
	if l.useColor {
		tag = levelColors[level] + tag + resetColor
	}
	if component != "" {
		tag = fmt.Sprintf("%s [%s]", tag, component)
	}

	l.sink.Printf("%s %s", tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(component, format string, args ...any) {
	l.output(LevelDebug, component, format, args...)
}

func (l *Logger) Info(component, format string, args ...any) {
	l.output(LevelInfo, component, format, args...)
}

func (l *Logger) Warn(component, format string, args ...any) {
	l.output(LevelWarn, component, format, args...)
}

func (l *Logger) Error(component, format string, args ...any) {
	l.output(LevelError, component, format, args...)
}

// Package-level helpers routed to the logger installed by Init.

func Debug(component, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Debug(component, format, args...)
	}
}

func Info(component, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Info(component, format, args...)
	}
}

func Warn(component, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Warn(component, format, args...)
	}
}

func Error(component, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Error(component, format, args...)
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "silent", "none":
		return LevelSilent, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q", s)
	}
}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}
