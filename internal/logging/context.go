package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	FieldComponent     = "component"
	FieldTID           = "tid"
	FieldCorrelationID = "correlation_id"
)

type contextKey int

const (
	tidKey contextKey = iota
	correlationIDKey
)

// WithTID attaches a task id that WithContext adds to log records.
func WithTID(ctx context.Context, tid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tidKey, strings.TrimSpace(tid))
}

// TIDFromContext returns the id set by WithTID, if any.
func TIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, tidKey)
}

// WithCorrelationID attaches an id shared by every record of one invocation.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, strings.TrimSpace(id))
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, correlationIDKey)
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// ContextFields returns the tid and correlation_id attributes present in ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr
	for _, f := range []struct {
		key  contextKey
		name string
	}{{tidKey, FieldTID}, {correlationIDKey, FieldCorrelationID}} {
		if value, ok := stringFromContext(ctx, f.key); ok {
			fields = append(fields, slog.String(f.name, value))
		}
	}
	return fields
}

// WithContext returns logger with the fields of ctx attached.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, field := range fields {
		args[i] = field
	}
	return logger.With(args...)
}
