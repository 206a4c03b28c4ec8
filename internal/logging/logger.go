// Package logging provides simple level-gated logging for mtmsg.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger wraps stdlib log with level support and a chain of
// contextual key-value fields, so a call site can attach the
// buffer/listener id it is operating on once and have every
// subsequent log line carry it.
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  string
	noColor bool
	fields  []any
	mu      *sync.Mutex
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration. Format selects "text" (the
// default, human-readable key=value suffix) or "json" (one object per
// line, for shipping to a log collector). Every call writes straight
// through to Output. Sync and NoColor are accepted but have no effect:
// the logger never buffers output and never applies ANSI coloring.
type Config struct {
	Level   LogLevel
	Format  string
	Output  io.Writer
	Sync    bool
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		mu:      &sync.Mutex{},
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithBuffer returns a child logger that prefixes every call with
// buffer_id=id, for tracing a single Buffer's lifecycle across
// AddMsg/NextMsg/Close calls.
func (l *Logger) WithBuffer(id uint64) *Logger {
	return l.with("buffer_id", id)
}

// WithListener returns a child logger that prefixes every call with
// listener_id=id.
func (l *Logger) WithListener(id uint64) *Logger {
	return l.with("listener_id", id)
}

// WithOp returns a child logger that prefixes every call with the
// object id and operation name a registry lookup or Abort sweep is
// acting on.
func (l *Logger) WithOp(id uint64, op string) *Logger {
	return l.with("tag", id).with("op", op)
}

// WithError returns a child logger that prefixes every call with
// err=<message>.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("err", err.Error())
}

func (l *Logger) with(key string, value any) *Logger {
	child := &Logger{
		logger:  l.logger,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		mu:      l.mu,
	}
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, key, value)
	return child
}

// formatArgs converts key-value pairs to a string
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func levelName(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	all := append(append([]any{}, l.fields...), args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := map[string]any{
			"time":  time.Now().Format(time.RFC3339Nano),
			"level": levelName(level),
			"msg":   msg,
		}
		for i := 0; i+1 < len(all); i += 2 {
			entry[fmt.Sprintf("%v", all[i])] = all[i+1]
		}
		line, err := json.Marshal(entry)
		if err != nil {
			l.logger.Printf("%s %s%s", prefix, msg, formatArgs(all))
			return
		}
		l.logger.Output(3, string(line))
		return
	}

	l.logger.Printf("%s %s%s", prefix, msg, formatArgs(all))
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, "[INFO]", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, "[WARN]", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, "[ERROR]", msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
