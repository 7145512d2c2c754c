package logger

import "context"

type contextKey string

const LoggerCtxKey contextKey = "logger"

// ContextWithLogger stores l in ctx for retrieval by FromContext.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, l)
}
