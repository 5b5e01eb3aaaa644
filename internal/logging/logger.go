package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level.
type Level int

const (
	// LevelDebug is the most verbose level.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the log output format.
type Format int

const (
	// FormatText outputs logs in zap's console format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// ParseFormat parses a string into a Format.
func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// Logger is the interface for structured logging.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})
	// Info logs an info message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
	// WithFields returns a new logger with the given fields.
	WithFields(keysAndValues ...interface{}) Logger
	// Named returns a new logger with name appended to its name.
	Named(name string) Logger
	// Sync flushes buffered entries.
	Sync() error
}

// Config holds the logger configuration.
type Config struct {
	Level  string
	Format string
	Output string
}

type logger struct {
	sugar *zap.SugaredLogger
}

// New creates a Logger from cfg. Output is "stdout", "stderr" or a file
// path; when the output cannot be opened it falls back to stdout.
func New(cfg Config) Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level).zapLevel())
	zcfg.Sampling = nil
	zcfg.DisableStacktrace = true
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if ParseFormat(cfg.Format) == FormatJSON {
		zcfg.Encoding = "json"
	} else {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	l, err := zcfg.Build()
	if err != nil {
		zcfg.OutputPaths = []string{"stdout"}
		if l, err = zcfg.Build(); err != nil {
			return NewNop()
		}
	}
	return &logger{sugar: l.Sugar()}
}

// NewNop creates a no-op logger that discards all output.
func NewNop() Logger {
	return &logger{sugar: zap.NewNop().Sugar()}
}

// NewWithCore wraps an existing zap core.
func NewWithCore(core zapcore.Core) Logger {
	return &logger{sugar: zap.New(core).Sugar()}
}

func (l *logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *logger) WithFields(keysAndValues ...interface{}) Logger {
	return &logger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{sugar: l.sugar.Named(name)}
}

func (l *logger) Sync() error {
	return l.sugar.Sync()
}
