package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Logger provides a simple logging interface with formatted output methods
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// Log is the global logger instance
var Log = newLogger()

func newLogger() *Logger {
	level := &slog.LevelVar{}
	level.Set(levelFromEnv())
	return &Logger{
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})),
		level: level,
	}
}

// levelFromEnv reads BIZBOT_LOG_LEVEL (debug/info/warn/error), defaulting to info
func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("BIZBOT_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level emitted by the global logger
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Infof logs an info level message with formatting
func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info(sprintf(format, args...))
}

// Warnf logs a warning level message with formatting
func (l *Logger) Warnf(format string, args ...any) {
	l.logger.Warn(sprintf(format, args...))
}

// Errorf logs an error level message with formatting
func (l *Logger) Errorf(format string, args ...any) {
	l.logger.Error(sprintf(format, args...))
}

// Debugf logs a debug level message with formatting
func (l *Logger) Debugf(format string, args ...any) {
	l.logger.Debug(sprintf(format, args...))
}

// sprintf avoids the Sprintf call when no arguments are given
func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
