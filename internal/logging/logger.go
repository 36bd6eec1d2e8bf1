// Package logging wraps logrus with the level/format/output conventions
// shared by every NoETL component.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps *logrus.Logger so call sites use structured fields
// instead of hand-formatted strings.
type Logger struct {
	*logrus.Logger
}

// Config controls level, output format, and destination.
type Config struct {
	Level      string `env:"NOETL_LOG_LEVEL,default=info" yaml:"level"`
	Format     string `env:"NOETL_LOG_FORMAT,default=text" yaml:"format"`
	Output     string `env:"NOETL_LOG_OUTPUT,default=stdout" yaml:"output"`
	FilePrefix string `env:"NOETL_LOG_FILE_PREFIX,default=noetl" yaml:"file_prefix"`
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "noetl"
		}
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			logger.Errorf("create log directory: %v", err)
			break
		}
		logPath := filepath.Join(logDir, prefix+".log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Errorf("open log file: %v", err)
			break
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	default:
		logger.SetOutput(os.Stdout)
	}

	return &Logger{Logger: logger}
}

// NewDefault builds a Logger with text output to stdout at info level,
// used by CLI tools and tests. name is attached as a "component" field
// on every entry.
func NewDefault(name string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)
	if name != "" {
		logger.AddHook(componentHook{name: name})
	}
	return &Logger{Logger: logger}
}

type componentHook struct{ name string }

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = h.name
	}
	return nil
}

// WithField returns a new log entry with a field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new log entry with multiple fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError returns a new log entry carrying err under the standard key.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}
