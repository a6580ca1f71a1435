// SPDX-License-Identifier: MIT

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	buildIDKey   ctxKey = "build_id"
	projectIDKey ctxKey = "project_id"
)

// carriedFields maps each context key to the log field it feeds.
// WithContext walks this table, so adding a correlation ID is one line
// here plus a pair of accessors below.
var carriedFields = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{buildIDKey, FieldBuildID},
	{projectIDKey, FieldProjectID},
}

func withValue(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func fromValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the request correlation ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// ContextWithBuildID stores the build ID in the context.
func ContextWithBuildID(ctx context.Context, id string) context.Context {
	return withValue(ctx, buildIDKey, id)
}

// ContextWithProjectID stores the project ID in the context.
func ContextWithProjectID(ctx context.Context, id string) context.Context {
	return withValue(ctx, projectIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	return fromValue(ctx, requestIDKey)
}

// BuildIDFromContext returns the build ID, or "" when absent.
func BuildIDFromContext(ctx context.Context) string {
	return fromValue(ctx, buildIDKey)
}

// ProjectIDFromContext returns the project ID, or "" when absent.
func ProjectIDFromContext(ctx context.Context) string {
	return fromValue(ctx, projectIDKey)
}

// WithContext enriches the supplied logger with whichever correlation
// IDs the context carries. The logger is returned unchanged when none
// are present.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}

	builder := logger.With()
	added := false
	for _, cf := range carriedFields {
		if v := fromValue(ctx, cf.key); v != "" {
			builder = builder.Str(cf.field, v)
			added = true
		}
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := FromContext(ctx)
	return WithContext(ctx, l.With().Str(FieldComponent, component).Logger())
}

// FromContext returns a logger from the context, or the base logger if
// the context carries none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := Base()
		return &b
	}
	return l
}
