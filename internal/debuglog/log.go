package debuglog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

func (l LogLevel) logrusLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	case LevelOff:
		return log.PanicLevel
	default:
		return log.InfoLevel
	}
}

// Options controls where and how log lines are written.
type Options struct {
	Level  LogLevel
	Format string // "text" or "json"
	Path   string // empty means stderr
}

var (
	currentLevel = LevelInfo
	logger       = log.New()
	logFile      *os.File
)

// Setup configures the shared logger. Calling it again replaces the previous
// output and closes any log file opened by an earlier call.
func Setup(opts Options) error {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	currentLevel = opts.Level
	logger.SetLevel(opts.Level.logrusLevel())

	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if opts.Level == LevelOff {
		logger.SetOutput(io.Discard)
		return nil
	}

	if opts.Path == "" {
		logger.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", opts.Path, err)
	}
	logFile = f
	logger.SetOutput(f)
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevel changes the current logging level
func SetLevel(level LogLevel) {
	currentLevel = level
	logger.SetLevel(level.logrusLevel())
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	return currentLevel
}

// Logger exposes the underlying logrus logger for middleware that needs it.
func Logger() *log.Logger {
	return logger
}

// Close closes the log file if open
func Close() error {
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		logger.SetOutput(os.Stderr)
		return err
	}
	return nil
}

func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

// Fields is an alias so callers don't need to import logrus directly.
type Fields = log.Fields

// WithFields returns an entry carrying the given structured fields.
func WithFields(fields Fields) *log.Entry {
	return logger.WithFields(fields)
}

// WithError is shorthand for WithFields(Fields{"error": err}).
func WithError(err error) *log.Entry {
	return logger.WithError(err)
}
