// Package logger provides the structured logger shared by all ledger client components.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with a fixed component field.
type Logger struct {
	*logrus.Logger
	component string
}

// Config configures a Logger.
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	Output io.Writer // defaults to stderr
}

// New creates a logger for the named component.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return &Logger{Logger: l, component: component}
}

// NewDefault creates an info-level text logger writing to stderr.
func NewDefault(component string) *Logger {
	return New(component, Config{})
}

// NewDiscard creates a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	return New("discard", Config{Output: io.Discard, Level: "panic"})
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// WithField returns an entry tagged with the component and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithField(key, value)
}

// WithFields returns an entry tagged with the component and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	return entry
}

// WithError returns an entry tagged with the component and the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithError(err)
}

// Named returns a child logger for a sub-component sharing output and level.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger, component: l.component + "." + name}
}
