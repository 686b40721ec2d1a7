// Package logger provides a simple logging interface for fleetwatch components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation. The process logger is
// backed by logrus.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// DebugEnv forces debug level when set to any non-empty value.
const DebugEnv = "FLEETWATCH_DEBUG"

// Format selects the logrus formatter.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures a logrus-backed Logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format Format
	Output io.Writer
}

// logrusLogger implements Logger on top of a logrus entry.
type logrusLogger struct {
	entry  *logrus.Entry
	prefix string
}

// New creates a logrus-backed logger. An empty level means info, and
// FLEETWATCH_DEBUG overrides whatever level was configured.
func New(opts Options) (Logger, error) {
	impl := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if os.Getenv(DebugEnv) != "" {
		level = logrus.DebugLevel
	}
	impl.SetLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	impl.SetOutput(out)

	switch opts.Format {
	case "", FormatText:
		impl.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	case FormatJSON:
		impl.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unexpected log format %q", opts.Format)
	}

	return &logrusLogger{entry: logrus.NewEntry(impl)}, nil
}

// WithPrefix returns a logger that tags every message with a component prefix
// (e.g. "[scheduler]"). Loggers that aren't logrus-backed are returned as-is
// wrapped in a prefixing adapter.
func WithPrefix(l Logger, prefix string) Logger {
	if ll, ok := l.(*logrusLogger); ok {
		component := strings.Trim(prefix, "[]")
		return &logrusLogger{entry: ll.entry.WithField("component", component), prefix: prefix}
	}
	return &prefixLogger{next: l, prefix: prefix}
}

func (l *logrusLogger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(l.format(format), args...)
}

func (l *logrusLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(l.format(format), args...)
}

func (l *logrusLogger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(l.format(format), args...)
}

func (l *logrusLogger) Error(format string, args ...interface{}) {
	l.entry.Errorf(l.format(format), args...)
}

func (l *logrusLogger) format(format string) string {
	if l.prefix == "" {
		return format
	}
	return l.prefix + " " + format
}

type prefixLogger struct {
	next   Logger
	prefix string
}

func (l *prefixLogger) Debug(format string, args ...interface{}) {
	l.next.Debug(l.prefix+" "+format, args...)
}

func (l *prefixLogger) Info(format string, args ...interface{}) {
	l.next.Info(l.prefix+" "+format, args...)
}

func (l *prefixLogger) Warn(format string, args ...interface{}) {
	l.next.Warn(l.prefix+" "+format, args...)
}

func (l *prefixLogger) Error(format string, args ...interface{}) {
	l.next.Error(l.prefix+" "+format, args...)
}

// noopLogger implements Logger but discards all messages.
// Useful for testing or when logging is not desired.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
// Safe for concurrent use since pollers log from many goroutines.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) Debug(format string, args ...interface{}) {
	l.add("debug", format, args...)
}

func (l *BufferLogger) Info(format string, args ...interface{}) {
	l.add("info", format, args...)
}

func (l *BufferLogger) Warn(format string, args ...interface{}) {
	l.add("warn", format, args...)
}

func (l *BufferLogger) Error(format string, args ...interface{}) {
	l.add("error", format, args...)
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Contains reports whether any captured message contains substr.
func (l *BufferLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

func init() {
	l, _ := New(Options{})
	defaultLogger = l
}

// Default returns the default logger for the package.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger for the package.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
