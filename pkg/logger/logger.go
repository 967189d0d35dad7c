// Package logger provides structured logging for the automation layer.
// It wraps logrus with a small chainable API so services can carry
// contextual fields without depending on logrus directly.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is "json" or "text". Defaults to text.
	Format string
	// Output is "stdout", "stderr" or "file". Defaults to stderr.
	Output string
	// FilePrefix is the log file path prefix when Output is "file".
	FilePrefix string
}

// Logger is a leveled, structured logger. The zero value is not usable;
// construct with New or NewDefault.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger from the given configuration.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch cfg.Format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger tagged with a component name.
func NewDefault(name string) *Logger {
	l := New(LoggingConfig{})
	if name == "" {
		return l
	}
	return l.WithField("component", name)
}

func resolveOutput(cfg LoggingConfig) io.Writer {
	switch cfg.Output {
	case "stdout":
		return os.Stdout
	case "file":
		if cfg.FilePrefix == "" {
			return os.Stderr
		}
		path := fmt.Sprintf("%s-%s.log", cfg.FilePrefix, time.Now().UTC().Format("20060102"))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stderr
		}
		return f
	default:
		return os.Stderr
	}
}

// WithField returns a logger carrying an extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger carrying several extra fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a logger carrying an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithContext returns a logger bound to ctx for formatter hooks.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{entry: l.entry.WithContext(ctx)}
}

// SetOutput redirects all output of this logger (and loggers derived from
// it) to w. Mainly useful in tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// SetLevel adjusts the minimum level at runtime.
func (l *Logger) SetLevel(level string) {
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.entry.Logger.SetLevel(parsed)
	}
}

func (l *Logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *Logger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
