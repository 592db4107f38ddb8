// Package logging provides a thin, component-scoped wrapper around
// log/slog for the dispatch engine, gateways, and data items to log
// through uniformly.
package logging

import (
	"context"
	"log/slog"
)

// Logger scopes every record it emits with a "component" attribute, so a
// gateway's or data item's log lines can be filtered without the caller
// threading that attribute through every call site.
type Logger struct {
	component string
	base      *slog.Logger
}

// New wraps base, scoping every record to component. If base is nil,
// slog.Default() is used.
func New(component string, base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{component: component, base: base}
}

// With returns a Logger scoped to a sub-component, e.g.
// logging.New("nats", nil).With("subscriber") logs under "nats.subscriber".
func (l *Logger) With(subComponent string) *Logger {
	return &Logger{component: l.component + "." + subComponent, base: l.base}
}

// Debug logs msg at debug level with the given key-value attributes.
func (l *Logger) Debug(msg string, args ...any) { l.log(context.Background(), slog.LevelDebug, msg, nil, args) }

// Info logs msg at info level with the given key-value attributes.
func (l *Logger) Info(msg string, args ...any) { l.log(context.Background(), slog.LevelInfo, msg, nil, args) }

// Warn logs msg at warn level with the given key-value attributes.
func (l *Logger) Warn(msg string, args ...any) { l.log(context.Background(), slog.LevelWarn, msg, nil, args) }

// Error logs msg at error level, attaching err if non-nil.
func (l *Logger) Error(msg string, err error, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, err, args)
}

// DebugContext is Debug with an explicit context, for handlers that want the
// request/trace attributes slog.Handler implementations pull from ctx.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, nil, args)
}

// InfoContext is Info with an explicit context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, nil, args)
}

// WarnContext is Warn with an explicit context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, nil, args)
}

// ErrorContext is Error with an explicit context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, err error, args ...any) {
	l.log(ctx, slog.LevelError, msg, err, args)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, err error, args []any) {
	attrs := make([]any, 0, len(args)+4)
	attrs = append(attrs, "component", l.component)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	attrs = append(attrs, args...)
	l.base.Log(ctx, level, msg, attrs...)
}

// Slog returns the underlying *slog.Logger with the component attribute
// already bound, for code that wants a plain slog.Logger (e.g. to pass to
// a third-party library's logger hook).
func (l *Logger) Slog() *slog.Logger {
	return l.base.With("component", l.component)
}
