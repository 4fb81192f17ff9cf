// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	shortIDKey
)

// correlation maps context values onto log fields, in output order.
var correlation = [...]struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{shortIDKey, FieldShortID},
}

func withString(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID tags ctx with the inbound request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// ContextWithShortID tags ctx with the video short ID being resolved.
func ContextWithShortID(ctx context.Context, id string) context.Context {
	return withString(ctx, shortIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string { return stringFrom(ctx, requestIDKey) }

// ShortIDFromContext returns the short ID, or "" when absent.
func ShortIDFromContext(ctx context.Context) string { return stringFrom(ctx, shortIDKey) }

// WithContext adds the request and short IDs plus the active trace and span
// IDs to logger. The logger is returned untouched when ctx carries none.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	b := logger.With()
	added := false
	for _, c := range correlation {
		if v := stringFrom(ctx, c.key); v != "" {
			b = b.Str(c.field, v)
			added = true
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		b = b.Str(FieldTraceID, sc.TraceID().String()).Str(FieldSpanID, sc.SpanID().String())
		added = true
	}
	if !added {
		return logger
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent enriched from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns the logger attached with zerolog's WithContext, falling
// back to the enriched base logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	b := WithContext(ctx, Base())
	return &b
}
