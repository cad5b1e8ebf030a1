package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// Output is used when File is empty; nil means os.Stderr.
	Output    io.Writer
	AddSource bool

	// File, when set, sends output to a size-rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int // 0 keeps all
}

// DefaultConfig returns the configuration used before config is loaded.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		Output:     os.Stderr,
		MaxSizeMB:  100,
		MaxBackups: 5,
	}
}

// level is shared by every logger built with New so a reload affects all of them.
var level = new(slog.LevelVar)

// ParseLevel maps a level name to a slog level. The empty string is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// SetLevel changes the level of every logger. Unknown names fall back to info.
func SetLevel(name string) {
	l, _ := ParseLevel(name)
	level.Set(l)
}

// Level returns the current level name in lower case.
func Level() string {
	return strings.ToLower(level.Level().String())
}

type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
	out    io.Closer // non-nil only for rotated file output
}

// New creates a logger for cfg. The returned logger owns the rotated file,
// if any; release it with Close.
func New(cfg Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)

	var (
		w   io.Writer = cfg.Output
		out io.Closer
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w, out = lj, lj
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "console":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return &slogLogger{logger: slog.New(h), ctx: context.Background(), out: out}, nil
}

// Close releases the rotated file behind l. It is a no-op for other loggers.
func Close(l Logger) error {
	if sl, ok := l.(*slogLogger); ok && sl.out != nil {
		return sl.out.Close()
	}
	return nil
}

// Slog returns the *slog.Logger behind l, for components that take one.
func Slog(l Logger) *slog.Logger {
	if sl, ok := l.(*slogLogger); ok {
		return sl.logger
	}
	return slog.Default()
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...), ctx: l.ctx, out: l.out}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{logger: l.logger, ctx: ctx, out: l.out}
}

var defaultLogger atomic.Pointer[slogLogger]

func init() {
	l, _ := New(DefaultConfig())
	defaultLogger.Store(l.(*slogLogger))
}

// SetDefault replaces the process-wide logger returned by Default. Its
// handler also becomes slog's default.
func SetDefault(l Logger) {
	if sl, ok := l.(*slogLogger); ok {
		defaultLogger.Store(sl)
		slog.SetDefault(sl.logger)
	}
}

// Default returns the process-wide logger.
func Default() Logger {
	return defaultLogger.Load()
}
