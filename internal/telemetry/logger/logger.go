package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logging interface handed to services and commands.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config holds logger configuration. It mirrors the log section of the
// CLI config.
type Config struct {
	Level     string    // debug, info, warn, error
	Format    string    // text, json
	Output    io.Writer // default os.Stderr
	AddSource bool
}

// level is shared by every logger built with New so that a config reload
// can change verbosity in place.
var level = new(slog.LevelVar)

// New builds a logger writing to cfg.Output.
func New(cfg Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redact,
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	level.Set(lvl)
	return &sink{log: slog.New(h), ctx: context.Background()}, nil
}

// ParseLevel parses debug, info, warn (or warning) and error. An empty
// string means warn, the CLI default.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logger: unknown level %q", s)
}

// SetLevel changes the level of every logger built with New.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// CurrentLevel returns the active level name.
func CurrentLevel() string {
	return strings.ToLower(level.Level().String())
}

type sink struct {
	log *slog.Logger
	ctx context.Context
}

func (s *sink) Debug(msg string, args ...any) { s.log.DebugContext(s.ctx, msg, args...) }
func (s *sink) Info(msg string, args ...any)  { s.log.InfoContext(s.ctx, msg, args...) }
func (s *sink) Warn(msg string, args ...any)  { s.log.WarnContext(s.ctx, msg, args...) }
func (s *sink) Error(msg string, args ...any) { s.log.ErrorContext(s.ctx, msg, args...) }

func (s *sink) With(args ...any) Logger {
	return &sink{log: s.log.With(args...), ctx: s.ctx}
}

func (s *sink) WithContext(ctx context.Context) Logger {
	return &sink{log: s.log, ctx: ctx}
}

// Slog returns the *slog.Logger behind l, for libraries that take one
// directly (the storage engine). Other implementations get a discarding
// logger.
func Slog(l Logger) *slog.Logger {
	if s, ok := l.(*sink); ok {
		return s.log
	}
	return slog.New(discardHandler{})
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return &sink{log: slog.New(discardHandler{}), ctx: context.Background()}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

var fallback atomic.Pointer[sink]

func init() {
	fallback.Store(Discard().(*sink))
}

// SetDefault sets the logger returned by Default and by FromContext when
// the context carries none. Only loggers built by this package are
// accepted.
func SetDefault(l Logger) {
	if s, ok := l.(*sink); ok {
		fallback.Store(s)
	}
}

// Default returns the process-wide logger. It discards until SetDefault
// is called.
func Default() Logger {
	return fallback.Load()
}
