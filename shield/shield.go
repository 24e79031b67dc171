// Package shield is the middleware stack of the admin HTTP server.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const (
	loggerKey    contextKey = "shield_logger"
	requestIDKey contextKey = "shield_request_id"
)

// DefaultMaxBody bounds JSON request bodies.
const DefaultMaxBody = 64 * 1024

// Stack returns the admin middleware in order: Methods (GET, POST),
// SecurityHeaders, MaxJSONBody, RequestID.
func Stack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		Methods(http.MethodGet, http.MethodPost),
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(DefaultMaxBody),
		RequestID(logger),
	}
}

// Logger returns the per-request logger, or slog.Default outside a request.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetRequestID returns the request id set by RequestID.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
