package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() {
	if os.Getenv("DEBUG") == "true" {
		level.SetLevel(zap.DebugLevel)
	}
	sugar = newLogger(os.Getenv("LOG_FORMAT")).Sugar()
}

func newLogger(format string) *zap.Logger {
	var cfg zap.Config
	switch strings.ToLower(format) {
	case "json", "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = level
	cfg.DisableCaller = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init rebuilds the process logger. format is "console" (default) or "json".
func Init(format string, debug bool) {
	if debug {
		level.SetLevel(zap.DebugLevel)
	} else {
		level.SetLevel(zap.InfoLevel)
	}
	l := newLogger(format).Sugar()
	mu.Lock()
	sugar = l
	mu.Unlock()
}

// Use replaces the underlying logger. Tests pass zap.NewNop() or an observer.
func Use(l *zap.Logger) {
	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
}

func get(subsystem string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Named(subsystem)
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	get(subsystem).Infof(format, args...)
}

// Debug logs a debug message (only shown if DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	get(subsystem).Debugf(format, args...)
}

// Warn logs a recoverable problem.
func Warn(subsystem, format string, args ...any) {
	get(subsystem).Warnf(format, args...)
}

// Error logs a failed unit of work. It never exits.
func Error(subsystem, format string, args ...any) {
	get(subsystem).Errorf(format, args...)
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = sugar.Sync()
}

// Truncate truncates a string to maxLen runes and adds ellipsis
func Truncate(s string, maxLen int) string {
	// Replace newlines with spaces for one-line logs
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
