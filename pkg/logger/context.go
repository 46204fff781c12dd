package logger

import (
	"context"
	"log/slog"
)

type scopedKey struct{}

// Into stores l on ctx. A nil logger leaves ctx untouched.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, scopedKey{}, l)
}

// With scopes the context's logger with extra attributes, e.g. trace_id or user_id.
func With(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return Into(ctx, From(ctx).With(args...))
}

func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(scopedKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return LoggerWrapper()
}
