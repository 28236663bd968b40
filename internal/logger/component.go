package logger

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is a structured logger scoped to one component.
//
// Loggers are cheap to copy: Clone and With share the underlying writers,
// so every clone carries the same component tag and sink configuration.
type Logger struct {
	component string
	index     string
	base      *log.Logger
	sink      *log.Logger
}

// Component returns the component tag.
func (l *Logger) Component() string {
	return l.component
}

// Index returns the sink index, or "" if the logger has no sink.
func (l *Logger) Index() string {
	return l.index
}

// Clone returns an independent handle with the same tag and sink.
func (l *Logger) Clone() *Logger {
	c := *l
	return &c
}

// With returns a child logger with extra key/value pairs on every record.
func (l *Logger) With(keyvals ...any) *Logger {
	c := l.Clone()
	c.base = l.base.With(keyvals...)
	if l.sink != nil {
		c.sink = l.sink.With(keyvals...)
	}
	return c
}

func (l *Logger) Debug(msg string, keyvals ...any) {
	l.base.Debug(msg, keyvals...)
	if l.sink != nil {
		l.sink.Debug(msg, keyvals...)
	}
}

func (l *Logger) Info(msg string, keyvals ...any) {
	l.base.Info(msg, keyvals...)
	if l.sink != nil {
		l.sink.Info(msg, keyvals...)
	}
}

func (l *Logger) Warn(msg string, keyvals ...any) {
	l.base.Warn(msg, keyvals...)
	if l.sink != nil {
		l.sink.Warn(msg, keyvals...)
	}
}

func (l *Logger) Error(msg string, keyvals ...any) {
	l.base.Error(msg, keyvals...)
	if l.sink != nil {
		l.sink.Error(msg, keyvals...)
	}
}

// ErrorWriter returns a writer that logs every write at error level, with
// msg as message and the written text as the "error" field. A multi-line
// write (such as a panic with its stack trace) stays a single record.
//
// It is meant for APIs that only accept a *log.Logger from the standard
// library, such as net/http.Server.ErrorLog.
func (l *Logger) ErrorWriter(msg string) io.Writer {
	return &errorWriter{logger: l, msg: msg}
}

type errorWriter struct {
	logger *Logger
	msg    string
}

func (w *errorWriter) Write(p []byte) (int, error) {
	if text := strings.TrimRight(string(p), "\r\n"); strings.TrimSpace(text) != "" {
		w.logger.Error(w.msg, "error", text)
	}
	return len(p), nil
}
