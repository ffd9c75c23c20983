// Package logtrace provides logging setup for cardlink services.
// It integrates with zerolog for structured logging and supports request tracing.
package logtrace

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger with Unix timestamp format.
// Configures zerolog to output to stderr with timestamps.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// requestIdContextKey is a custom type for context key to store request IDs.
type requestIdContextKey string

const requestIdKey = requestIdContextKey("requestId")

// WithRequestId returns a context carrying the given request ID.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdKey, id)
}

// RequestIdFromContext returns the request ID stored in the context,
// or an empty string if none is set.
func RequestIdFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIdKey).(string); ok {
		return id
	}
	return ""
}
