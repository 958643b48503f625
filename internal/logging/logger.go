package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// LevelError only logs errors
	LevelError LogLevel = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs general information, warnings and errors
	LevelInfo
	// LevelDebug logs detailed debug information and all above
	LevelDebug
	// LevelTrace logs very detailed trace information and all above
	LevelTrace
)

var levelNames = map[LogLevel]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

// String returns the upper-case name of the level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (LogLevel, bool) {
	for level, name := range levelNames {
		if strings.EqualFold(s, name) {
			return level, true
		}
	}
	return LevelInfo, false
}

// levelHolder is shared between a logger and every logger derived from it
// with WithPrefix, so SetLevel on the root affects all of them.
type levelHolder struct {
	mu    sync.RWMutex
	level LogLevel
}

// Logger provides leveled, prefixed logging on top of zap.
type Logger struct {
	prefix string
	levels *levelHolder
	sugar  *zap.SugaredLogger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("CACHEFS")

		// Set initial log level from environment
		if env := os.Getenv("LOG_LEVEL"); env != "" {
			if level, ok := ParseLevel(env); ok {
				defaultLogger.SetLevel(level)
			}
		}

		// Enable debug logging if FUSE_DEBUG is set
		if os.Getenv("FUSE_DEBUG") != "" {
			defaultLogger.SetLevel(LevelDebug)
		}
	})
	return defaultLogger
}

// NewLogger creates a new logger with the given prefix
func NewLogger(prefix string) *Logger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if os.Getenv("LOG_LONGFILE") != "" {
		encoderCfg.EncodeCaller = zapcore.FullCallerEncoder
	}

	// Level filtering happens in shouldLog; zap itself passes everything
	// through so that Trace can sit below zap's lowest level.
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		zap.DebugLevel,
	)
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(2)}

	return &Logger{
		prefix: prefix,
		levels: &levelHolder{level: LevelInfo},
		sugar:  zap.New(core, opts...).Named(prefix).Sugar(),
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.levels.mu.Lock()
	defer l.levels.mu.Unlock()
	l.levels.level = level
}

// Level returns the current logging level.
func (l *Logger) Level() LogLevel {
	l.levels.mu.RLock()
	defer l.levels.mu.RUnlock()
	return l.levels.level
}

// shouldLog determines if a message at the given level should be logged
func (l *Logger) shouldLog(level LogLevel) bool {
	return level <= l.Level()
}

// log performs the actual logging
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	switch level {
	case LevelError:
		l.sugar.Errorf(format, args...)
	case LevelWarn:
		l.sugar.Warnf(format, args...)
	case LevelInfo:
		l.sugar.Infof(format, args...)
	default:
		l.sugar.Debugf(format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(LevelTrace, "[TRACE] "+format, args...)
}

// WithPrefix creates a new logger with an additional prefix. The derived
// logger shares the level of its parent.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		prefix: l.prefix + "." + prefix,
		levels: l.levels,
		sugar:  l.sugar.Named(prefix),
	}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
