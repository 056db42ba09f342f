// Package logging provides the structured logger used across the pipeline.
// Records are emitted through zerolog: a human console format on terminals
// and one JSON object per line everywhere else.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	tkerrors "github.com/conneroisu/toolkit/internal/errors"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configured level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Fatal(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// Output formats.
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatText = "text"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "auto", "json" or "text"
	Output     io.Writer
	TimeFormat string
	Component  string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:      LevelInfo,
		Format:     FormatAuto,
		Output:     os.Stderr,
		TimeFormat: time.Kitchen,
	}
}

// ToolkitLogger implements Logger on top of zerolog.
type ToolkitLogger struct {
	zl        zerolog.Logger
	component string
}

// NewLogger creates a new structured logger
func NewLogger(config *LoggerConfig) *ToolkitLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if useConsole(config.Format, out) {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: config.TimeFormat,
			NoColor:    !isTerminal(out),
		}
	}

	zl := zerolog.New(w).Level(config.Level.zerolog()).With().Timestamp().Logger()

	return &ToolkitLogger{zl: zl, component: config.Component}
}

// Nop returns a logger that discards everything.
func Nop() *ToolkitLogger {
	return &ToolkitLogger{zl: zerolog.Nop()}
}

func useConsole(format string, out io.Writer) bool {
	switch format {
	case FormatJSON:
		return false
	case FormatText:
		return true
	default:
		return isTerminal(out)
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Debug logs a debug message
func (l *ToolkitLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, l.zl.Debug(), nil, msg, fields)
}

// Info logs an info message
func (l *ToolkitLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, l.zl.Info(), nil, msg, fields)
}

// Warn logs a warning message
func (l *ToolkitLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, l.zl.Warn(), err, msg, fields)
}

// Error logs an error message
func (l *ToolkitLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, l.zl.Error(), err, msg, fields)
}

// Fatal logs at error level with a fatal marker. It does not exit; the
// caller decides how to terminate.
func (l *ToolkitLogger) Fatal(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, l.zl.Error().Bool("fatal", true), err, msg, fields)
}

// With creates a new logger with additional fields
func (l *ToolkitLogger) With(fields ...interface{}) Logger {
	return &ToolkitLogger{
		zl:        l.zl.With().Fields(pairs(fields)).Logger(),
		component: l.component,
	}
}

// WithComponent creates a new logger with component context
func (l *ToolkitLogger) WithComponent(component string) Logger {
	return &ToolkitLogger{zl: l.zl, component: component}
}

func (l *ToolkitLogger) log(ctx context.Context, e *zerolog.Event, err error, msg string, fields []interface{}) {
	if e == nil {
		return
	}
	if ctx != nil {
		e = e.Ctx(ctx)
	}
	if l.component != "" {
		e = e.Str("component", l.component)
	}
	if err != nil {
		e = e.Err(err)
		var te *tkerrors.ToolkitError
		if errors.As(err, &te) && te.Diagnostic != "" {
			e = e.Str("diagnostic", te.Diagnostic)
		}
	}
	if len(fields) > 0 {
		e = e.Fields(pairs(fields))
	}
	e.Msg(msg)
}

// pairs drops a trailing key without a value and any non-string key.
func pairs(fields []interface{}) []interface{} {
	out := make([]interface{}, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			out = append(out, key, fields[i+1])
		}
	}
	return out
}

// NewRunID returns an identifier attached to every record of one build run.
func NewRunID() string {
	return uuid.NewString()
}

// PerfLogger tracks the duration of one operation
type PerfLogger struct {
	Logger
	startTime time.Time
	operation string
}

// StartOperation begins performance tracking
func StartOperation(logger Logger, operation string) *PerfLogger {
	return &PerfLogger{
		Logger:    logger.With("operation", operation),
		startTime: time.Now(),
		operation: operation,
	}
}

// End completes performance tracking, logs the duration and returns it
func (p *PerfLogger) End(ctx context.Context, fields ...interface{}) time.Duration {
	duration := time.Since(p.startTime)
	fields = append(fields, "duration_ms", duration.Milliseconds())
	p.Info(ctx, p.operation+" completed", fields...)
	return duration
}

// EndWithError completes performance tracking and logs an error
func (p *PerfLogger) EndWithError(ctx context.Context, err error, fields ...interface{}) time.Duration {
	duration := time.Since(p.startTime)
	fields = append(fields, "duration_ms", duration.Milliseconds())
	p.Error(ctx, err, p.operation+" failed", fields...)
	return duration
}
