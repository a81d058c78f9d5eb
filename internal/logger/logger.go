// Package logger wraps zerolog with anypod's console/JSON formatting, optional
// file rotation via lumberjack, and a context-carried job correlation id.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog for application logging.
type Logger struct {
	zerolog.Logger
	rotator            *lumberjack.Logger
	includeStacktrace bool
}

// Config holds logger configuration, sourced from the LOG_* environment
// variables (spec §6.1).
type Config struct {
	Level             string // LOG_LEVEL
	Format            string // LOG_FORMAT: "human" or "json"
	IncludeStacktrace bool   // LOG_INCLUDE_STACKTRACE
	Path              string // directory for rotated log files; empty disables file logging
	MaxSizeMB         int
	MaxBackups        int
	MaxAgeDays        int
	Compress          bool
}

// New creates a new logger instance from Config.
func New(cfg Config) *Logger {
	consoleOutput := newConsoleOutput(cfg.Format)
	level := parseLevel(cfg.Level)

	output := consoleOutput
	var rotator *lumberjack.Logger

	if cfg.Path != "" {
		rotator, output = setupFileLogging(cfg, consoleOutput)
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: zl, rotator: rotator, includeStacktrace: cfg.IncludeStacktrace}
}

func newConsoleOutput(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

func setupFileLogging(cfg Config, consoleOutput io.Writer) (*lumberjack.Logger, io.Writer) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, consoleOutput
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, "anypod.log"),
		MaxSize:    positiveOrDefault(cfg.MaxSizeMB, 10),
		MaxBackups: positiveOrDefault(cfg.MaxBackups, 5),
		MaxAge:     positiveOrDefault(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	fileWriter := zerolog.ConsoleWriter{
		Out:        rotator,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}

	return rotator, io.MultiWriter(consoleOutput, fileWriter)
}

func positiveOrDefault(val, defaultVal int) int {
	if val <= 0 {
		return defaultVal
	}
	return val
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// LogError logs err at error level, attaching a stack-shaped cause chain
// when IncludeStacktrace is set (§6.1 LOG_INCLUDE_STACKTRACE).
func (l *Logger) LogError(event *zerolog.Event, err error) *zerolog.Event {
	event = event.Err(err)
	if l.includeStacktrace {
		event = event.Interface("cause_chain", causeChain(err))
	}
	return event
}

func causeChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return chain
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a new logger with a component field set, matching the
// per-subsystem logger convention every anypod component constructor uses.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:            l.Logger.With().Str("component", component).Logger(),
		rotator:           l.rotator,
		includeStacktrace: l.includeStacktrace,
	}
}
