// Package logger is the structured logger of the report card service, a thin
// layer over log/slog.
//
// Entries are JSON in production and slog text lines on a terminal. The
// package adds the domain field constructors, request-scoped loggers and
// context propagation the rest of the code relies on.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Level of an entry.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else means LevelInfo.
func ParseLevel(s string) Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return l
}

// Format of the output lines.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// ParseFormat returns FormatConsole for "console" (or "text") and FormatJSON
// otherwise.
func ParseFormat(s string) Format {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(FormatConsole)) || strings.EqualFold(s, "text") {
		return FormatConsole
	}
	return FormatJSON
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field is one key/value of an entry.
type Field = slog.Attr

func String(key, value string) Field                 { return slog.String(key, value) }
func Int(key string, value int) Field                { return slog.Int(key, value) }
func Any(key string, value any) Field                { return slog.Any(key, value) }
func Duration(key string, value time.Duration) Field { return slog.Duration(key, value) }

// Err is written under "error"; a nil error gives null.
func Err(err error) Field {
	return slog.Any("error", err)
}

// Поля предметной области.
func StudentID(id string) Field     { return String("student_id", id) }
func Section(s string) Field        { return String("section", s) }
func Row(index int) Field           { return Int("row", index) }
func SessionID(id string) Field     { return String("session_id", id) }
func Model(name string) Field       { return String("model", name) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// RequestIDKey is the field set by WithRequestID.
const RequestIDKey = "request_id"

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// Options of New.
type Options struct {
	Output    io.Writer // os.Stdout when nil
	Level     Level
	Format    Format // FormatJSON when empty
	AddCaller bool
}

// DefaultOptions: JSON to stdout at info, with caller.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, Format: FormatJSON, AddCaller: true}
}

// Logger is safe for concurrent use. With returns a child sharing the
// handler's output.
type Logger struct {
	h   slog.Handler
	now func() time.Time
}

// New creates a logger writing JSON or text lines.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddCaller}

	var h slog.Handler
	if opts.Format == FormatConsole {
		h = slog.NewTextHandler(opts.Output, ho)
	} else {
		h = slog.NewJSONHandler(opts.Output, ho)
	}
	return FromHandler(h)
}

// FromHandler wraps any slog handler.
func FromHandler(h slog.Handler) *Logger {
	return &Logger{h: h, now: time.Now}
}

// Nop discards everything.
func Nop() *Logger {
	return FromHandler(slog.DiscardHandler)
}

// Slog returns the same sink as a *slog.Logger, for slog.SetDefault and
// libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.h)
}

// With returns a child logger carrying extra fields.
func (l *Logger) With(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{h: l.h.WithAttrs(fields), now: l.now}
}

// WithRequestID tags every entry with the HTTP request ID.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(String(RequestIDKey, id))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// log is always called from exactly one exported method; the source frame
// skips runtime.Callers, log and that method.
func (l *Logger) log(level Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.h.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(l.now(), level, msg, pcs[0])
	r.AddAttrs(fields...)
	_ = l.h.Handle(ctx, r)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or one over
// slog.Default() so callers never need a nil check.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return FromHandler(slog.Default().Handler())
}
