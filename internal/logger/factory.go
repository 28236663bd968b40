package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Config controls how a Factory builds component loggers.
type Config struct {
	// Level is the minimum level (DEBUG, INFO, WARN, ERROR).
	Level string

	// Format is the console format: "text" or "json".
	Format string

	// Output is "stdout", "stderr" or a file path.
	Output string

	// SinkPath is the file receiving structured (JSON) records from components
	// that request a sink. Empty disables the sink.
	SinkPath string

	// Writer and SinkWriter override Output and SinkPath when set.
	Writer     io.Writer
	SinkWriter io.Writer
}

// ComponentConfig carries per-component logging options.
type ComponentConfig struct {
	// Sink routes the component's records to the structured sink, if the
	// factory has one.
	Sink *SinkConfig
}

// SinkConfig describes how a component's records are tagged in the sink.
type SinkConfig struct {
	// Index is attached to every sink record so downstream collectors can
	// route them (e.g. "query-server-logs").
	Index string
}

// Factory produces component loggers that share a level, a console output and
// an optional structured sink.
//
// Thread safety:
// A Factory is immutable after NewFactory and safe for concurrent use.
type Factory struct {
	level     log.Level
	formatter log.Formatter
	out       io.Writer
	sink      io.Writer
	closers   []io.Closer
}

// NewFactory opens the configured outputs and returns a Factory.
//
// Returns an error if a file output or the sink cannot be opened.
func NewFactory(cfg Config) (*Factory, error) {
	level, ok := parseLevel(cfg.Level)
	if cfg.Level != "" && !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	f := &Factory{
		level:     level,
		formatter: parseFormatter(cfg.Format),
	}

	out := cfg.Writer
	if out == nil {
		w, closer, err := openOutput(cfg.Output)
		if err != nil {
			return nil, err
		}
		out = w
		if closer != nil {
			f.closers = append(f.closers, closer)
		}
	}
	f.out = out

	sink := cfg.SinkWriter
	if sink == nil && cfg.SinkPath != "" {
		file, err := os.OpenFile(cfg.SinkPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open log sink %s: %w", cfg.SinkPath, err)
		}
		sink = file
		f.closers = append(f.closers, file)
	}
	f.sink = sink

	return f, nil
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		return file, file, nil
	}
}

// HasSink reports whether the factory was configured with a structured sink.
func (f *Factory) HasSink() bool {
	return f.sink != nil
}

// ComponentLogger returns a logger tagged with the component name.
//
// Console records carry the component as prefix and as a "component" field.
// If cfg requests a sink and the factory has one, records are also written
// to the sink as JSON with "component" and "index" fields.
func (f *Factory) ComponentLogger(component string, cfg *ComponentConfig) *Logger {
	base := log.NewWithOptions(f.out, log.Options{
		Level:           f.level,
		Prefix:          component,
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		Formatter:       f.formatter,
		Fields:          []any{"component", component},
	})

	l := &Logger{
		component: component,
		base:      base,
	}

	if cfg != nil && cfg.Sink != nil && f.sink != nil {
		l.index = cfg.Sink.Index
		l.sink = log.NewWithOptions(f.sink, log.Options{
			Level:           f.level,
			ReportTimestamp: true,
			TimeFormat:      TimeFormat,
			Formatter:       log.JSONFormatter,
			Fields:          []any{"component", component, "index", cfg.Sink.Index},
		})
	}

	return l
}

// Close releases any files opened by the factory.
func (f *Factory) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}
