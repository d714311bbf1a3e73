package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// GetLoggerFromContext returns the logger stored in ctx, falling back to
// slog.Default. The request id of ctx, if any, is attached.
func GetLoggerFromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(loggerKey).(*slog.Logger)
	if !ok {
		l = slog.Default()
	}

	if id := GetRequestIDFromCtx(ctx); id != "" {
		l = l.With(slog.String("request_id", id))
	}
	return l
}

// Returns logger from context and attaches operation name
func GetLoggerFromContextWithOp(ctx context.Context, op string) *slog.Logger {
	return GetLoggerFromContext(ctx).With(slog.String("op", op))
}

func MakeContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// MakeContextWithAttrs stores a child of the context logger carrying attrs,
// so every later lookup through ctx logs them.
func MakeContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	l, ok := ctx.Value(loggerKey).(*slog.Logger)
	if !ok {
		l = slog.Default()
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return MakeContextWithLogger(ctx, l.With(args...))
}
