package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// TimeFormat is the timestamp layout used by every logger built by this package.
const TimeFormat = "2006-01-02 15:04:05"

// std is the process-wide logger used by the package-level helpers.
var std atomic.Pointer[log.Logger]

func init() {
	std.Store(log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.InfoLevel,
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
	}))
}

// SetLevel changes the minimum level of the process-wide logger.
// Unknown levels are ignored.
func SetLevel(level string) {
	if lvl, ok := parseLevel(level); ok {
		std.Load().SetLevel(lvl)
	}
}

// SetOutput replaces the process-wide logger with one writing to w using
// the given format ("text" or "json"). The current level is preserved.
func SetOutput(w io.Writer, format string) {
	current := std.Load()
	l := log.NewWithOptions(w, log.Options{
		Level:           current.GetLevel(),
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		Formatter:       parseFormatter(format),
	})
	std.Store(l)
}

func parseLevel(level string) (log.Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DebugLevel, true
	case "INFO":
		return log.InfoLevel, true
	case "WARN":
		return log.WarnLevel, true
	case "ERROR":
		return log.ErrorLevel, true
	default:
		return log.InfoLevel, false
	}
}

func parseFormatter(format string) log.Formatter {
	if strings.EqualFold(format, "json") {
		return log.JSONFormatter
	}
	return log.TextFormatter
}

func Debug(format string, v ...any) {
	std.Load().Debugf(format, v...)
}

func Info(format string, v ...any) {
	std.Load().Infof(format, v...)
}

func Warn(format string, v ...any) {
	std.Load().Warnf(format, v...)
}

func Error(format string, v ...any) {
	std.Load().Errorf(format, v...)
}
